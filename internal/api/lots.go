package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Comparador/internal/events"
	"github.com/MikeSquared-Agency/Comparador/internal/store"
)

// lot loads {lotId} and checks it belongs to p.
func (h *ProjectsHandler) lot(w http.ResponseWriter, r *http.Request, p *store.Project) *store.Lot {
	id, ok := urlID(w, r, "lotId")
	if !ok {
		return nil
	}
	l, err := h.store.GetLot(r.Context(), id)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return nil
	}
	if l == nil || l.ProjectID != p.ID {
		writeError(w, http.StatusNotFound, "lot not found")
		return nil
	}
	return l
}

func (h *ProjectsHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	lots, err := h.store.ListLots(r.Context(), p.ID)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	if lots == nil {
		lots = []store.Lot{}
	}
	writeJSON(w, http.StatusOK, lots)
}

type LotRequest struct {
	Name        string `json:"name" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Description string `json:"description"`
}

func (h *ProjectsHandler) CreateLot(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	var req LotRequest
	if !decode(w, r, &req) {
		return
	}
	l := &store.Lot{ProjectID: p.ID, Name: req.Name, Location: req.Location, Description: req.Description}
	if err := h.store.CreateLot(r.Context(), l); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	h.publish("lot.created", events.SubjectLotCreated(l.ID.String()), events.LotCreatedEvent{
		LotID:     l.ID.String(),
		ProjectID: p.ID.String(),
		Name:      l.Name,
	})
	writeJSON(w, http.StatusCreated, l)
}

func (h *ProjectsHandler) UpdateLot(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	l := h.lot(w, r, p)
	if l == nil {
		return
	}
	var req LotRequest
	if !decode(w, r, &req) {
		return
	}
	l.Name, l.Location, l.Description = req.Name, req.Location, req.Description
	if err := h.store.UpdateLot(r.Context(), l); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *ProjectsHandler) DeleteLot(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	l := h.lot(w, r, p)
	if l == nil {
		return
	}
	if err := h.store.DeleteLot(r.Context(), l.ID); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ReorderLotsRequest struct {
	OrderedIDs []uuid.UUID `json:"ordered_ids" validate:"required,min=1"`
}

func (h *ProjectsHandler) ReorderLots(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	var req ReorderLotsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.ReorderLots(r.Context(), p.ID, req.OrderedIDs); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	lots, err := h.store.ListLots(r.Context(), p.ID)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lots)
}

// --- Evaluations ---

func (h *ProjectsHandler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	evals, err := h.store.ListEvaluations(r.Context(), p.ID)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	if evals == nil {
		evals = []store.Evaluation{}
	}
	writeJSON(w, http.StatusOK, evals)
}

type EvaluationRequest struct {
	FactorID uuid.UUID `json:"factor_id" validate:"required"`
}

// SaveEvaluation selects a factor for the lot, replacing any earlier selection
// for the same criterion.
func (h *ProjectsHandler) SaveEvaluation(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	l := h.lot(w, r, p)
	if l == nil {
		return
	}
	var req EvaluationRequest
	if !decode(w, r, &req) {
		return
	}
	ev, err := h.store.UpsertEvaluation(r.Context(), l.ID, req.FactorID)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	h.metrics.EvaluationSaved()

	caller, _ := PrincipalFrom(r.Context())
	h.publish("evaluation.saved", events.SubjectEvaluationSaved(l.ID.String()), events.EvaluationSavedEvent{
		ProjectID:   p.ID.String(),
		LotID:       l.ID.String(),
		CriterionID: ev.CriterionID.String(),
		FactorID:    ev.FactorID.String(),
		SavedBy:     caller.UserID.String(),
		UpdatedAt:   ev.UpdatedAt,
	})
	writeJSON(w, http.StatusOK, ev)
}
