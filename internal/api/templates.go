package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Comparador/internal/events"
	"github.com/MikeSquared-Agency/Comparador/internal/metrics"
	"github.com/MikeSquared-Agency/Comparador/internal/store"
)

// TemplatesHandler serves the rubric editor: versions and their
// classification, criterion and factor nodes.
type TemplatesHandler struct {
	store   store.Store
	events  events.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewTemplatesHandler(s store.Store, ev events.Client, m *metrics.Metrics, logger *slog.Logger) *TemplatesHandler {
	return &TemplatesHandler{store: s, events: ev, metrics: m, logger: logger}
}

func (h *TemplatesHandler) publish(kind, subject string, data interface{}) {
	events.Publish(h.events, h.logger, subject, data)
	h.metrics.EventPublished(kind)
}

func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	versions, err := h.store.ListVersions(r.Context())
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	if versions == nil {
		versions = []*store.TemplateVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *TemplatesHandler) Active(w http.ResponseWriter, r *http.Request) {
	v, err := h.store.GetActiveVersion(r.Context())
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "no active template version")
		return
	}
	h.writeTree(w, r, v.ID)
}

func (h *TemplatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	h.writeTree(w, r, id)
}

func (h *TemplatesHandler) writeTree(w http.ResponseWriter, r *http.Request, versionID uuid.UUID) {
	tree, err := h.store.GetTemplateTree(r.Context(), versionID)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	if tree == nil {
		writeError(w, http.StatusNotFound, "template version not found")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

type CreateVersionRequest struct {
	Name          string     `json:"name" validate:"required"`
	Description   string     `json:"description"`
	FromVersionID *uuid.UUID `json:"from_version_id"`
}

func (h *TemplatesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateVersionRequest
	if !decode(w, r, &req) {
		return
	}
	v := &store.TemplateVersion{Name: req.Name, Description: req.Description}
	if err := h.store.CreateVersion(r.Context(), v, req.FromVersionID); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	ev := events.TemplateCreatedEvent{VersionID: v.ID.String(), Version: v.Version, Name: v.Name}
	if req.FromVersionID != nil {
		ev.FromVersion = req.FromVersionID.String()
	}
	h.publish("template.created", events.SubjectTemplateCreated(v.ID.String()), ev)
	writeJSON(w, http.StatusCreated, v)
}

func (h *TemplatesHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.ActivateVersion(r.Context(), id); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	v, err := h.store.GetVersion(r.Context(), id)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "template version not found")
		return
	}
	h.publish("template.activated", events.SubjectTemplateActivated(id.String()),
		events.TemplateActivatedEvent{VersionID: id.String()})
	writeJSON(w, http.StatusOK, v)
}

func (h *TemplatesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteVersion(r.Context(), id); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reorder applies a full reorder of one sibling list and returns the updated tree.
func (h *TemplatesHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var cmd store.ReorderCommand
	if !decode(w, r, &cmd) {
		return
	}
	if err := h.store.ApplyReorder(r.Context(), id, cmd); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	h.writeTree(w, r, id)
}

// --- Classifications ---

type ClassificationRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *TemplatesHandler) CreateClassification(w http.ResponseWriter, r *http.Request) {
	versionID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req ClassificationRequest
	if !decode(w, r, &req) {
		return
	}
	c := &store.Classification{TemplateVersionID: versionID, Name: req.Name, Description: req.Description}
	if err := h.store.CreateClassification(r.Context(), c); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *TemplatesHandler) UpdateClassification(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req ClassificationRequest
	if !decode(w, r, &req) {
		return
	}
	c := &store.Classification{ID: id, Name: req.Name, Description: req.Description}
	if err := h.store.UpdateClassification(r.Context(), c); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *TemplatesHandler) DeleteClassification(w http.ResponseWriter, r *http.Request) {
	h.deleteNode(w, r, h.store.DeleteClassification)
}

// --- Criteria ---

type CriterionRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	MaxScore    float64 `json:"max_score" validate:"gte=0"`
}

func (h *TemplatesHandler) CreateCriterion(w http.ResponseWriter, r *http.Request) {
	classID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req CriterionRequest
	if !decode(w, r, &req) {
		return
	}
	c := &store.Criterion{ClassificationID: classID, Name: req.Name, Description: req.Description, MaxScore: req.MaxScore}
	if err := h.store.CreateCriterion(r.Context(), c); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *TemplatesHandler) UpdateCriterion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req CriterionRequest
	if !decode(w, r, &req) {
		return
	}
	c := &store.Criterion{ID: id, Name: req.Name, Description: req.Description, MaxScore: req.MaxScore}
	if err := h.store.UpdateCriterion(r.Context(), c); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *TemplatesHandler) DeleteCriterion(w http.ResponseWriter, r *http.Request) {
	h.deleteNode(w, r, h.store.DeleteCriterion)
}

// --- Factors ---

type FactorRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Value       float64 `json:"value" validate:"min=0,max=1"`
}

func (h *TemplatesHandler) CreateFactor(w http.ResponseWriter, r *http.Request) {
	critID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req FactorRequest
	if !decode(w, r, &req) {
		return
	}
	f := &store.Factor{CriterionID: critID, Name: req.Name, Description: req.Description, Value: req.Value}
	if err := h.store.CreateFactor(r.Context(), f); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *TemplatesHandler) UpdateFactor(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req FactorRequest
	if !decode(w, r, &req) {
		return
	}
	f := &store.Factor{ID: id, Name: req.Name, Description: req.Description, Value: req.Value}
	if err := h.store.UpdateFactor(r.Context(), f); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *TemplatesHandler) DeleteFactor(w http.ResponseWriter, r *http.Request) {
	h.deleteNode(w, r, h.store.DeleteFactor)
}

func (h *TemplatesHandler) deleteNode(w http.ResponseWriter, r *http.Request, del func(context.Context, uuid.UUID) error) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	if err := del(r.Context(), id); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
