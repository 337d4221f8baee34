package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Comparador/internal/events"
	"github.com/MikeSquared-Agency/Comparador/internal/metrics"
	"github.com/MikeSquared-Agency/Comparador/internal/store"
)

// ProjectsHandler serves projects and everything scoped under them. Clients
// only see their own projects; admins see all.
type ProjectsHandler struct {
	store   store.Store
	events  events.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewProjectsHandler(s store.Store, ev events.Client, m *metrics.Metrics, logger *slog.Logger) *ProjectsHandler {
	return &ProjectsHandler{store: s, events: ev, metrics: m, logger: logger}
}

func (h *ProjectsHandler) publish(kind, subject string, data interface{}) {
	events.Publish(h.events, h.logger, subject, data)
	h.metrics.EventPublished(kind)
}

// project loads the {id} project and checks the caller may access it. It
// writes the error response and returns nil when not.
func (h *ProjectsHandler) project(w http.ResponseWriter, r *http.Request) *store.Project {
	id, ok := urlID(w, r, "id")
	if !ok {
		return nil
	}
	p, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return nil
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return nil
	}
	caller, _ := PrincipalFrom(r.Context())
	if !caller.IsAdmin() && p.ClientID != caller.UserID {
		writeError(w, http.StatusForbidden, "forbidden")
		return nil
	}
	return p
}

func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := PrincipalFrom(r.Context())
	q := r.URL.Query()

	var filter store.ProjectFilter
	if !caller.IsAdmin() {
		filter.ClientID = &caller.UserID
	} else if c := q.Get("client_id"); c != "" {
		id, err := uuid.Parse(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid client_id")
			return
		}
		filter.ClientID = &id
	}
	if s := q.Get("status"); s != "" {
		status := store.ProjectStatus(s)
		filter.Status = &status
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			filter.Offset = n
		}
	}

	projects, err := h.store.ListProjects(r.Context(), filter)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

type CreateProjectRequest struct {
	Name              string     `json:"name" validate:"required"`
	Description       string     `json:"description"`
	ClientID          *uuid.UUID `json:"client_id"`
	TemplateVersionID *uuid.UUID `json:"template_version_id"`
}

// Create binds the new project to the requested template version, or to the
// active one. Clients always own the projects they create.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decode(w, r, &req) {
		return
	}
	caller, _ := PrincipalFrom(r.Context())

	p := &store.Project{
		Name:        req.Name,
		Description: req.Description,
		ClientID:    caller.UserID,
		Status:      store.ProjectActive,
	}
	if caller.IsAdmin() && req.ClientID != nil {
		p.ClientID = *req.ClientID
	}
	if req.TemplateVersionID != nil {
		p.TemplateVersionID = *req.TemplateVersionID
	}

	if err := h.store.CreateProject(r.Context(), p); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	h.publish("project.created", events.SubjectProjectCreated(p.ID.String()), events.ProjectCreatedEvent{
		ProjectID:         p.ID.String(),
		ClientID:          p.ClientID.String(),
		TemplateVersionID: p.TemplateVersionID.String(),
		Name:              p.Name,
	})
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if p := h.project(w, r); p != nil {
		writeJSON(w, http.StatusOK, p)
	}
}

type UpdateProjectRequest struct {
	Name        *string              `json:"name" validate:"omitempty,min=1"`
	Description *string              `json:"description"`
	Status      *store.ProjectStatus `json:"status" validate:"omitempty,oneof=activo archivado"`
}

func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	var req UpdateProjectRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Status != nil {
		if p.Status == store.ProjectFinalized {
			writeError(w, http.StatusConflict, store.ErrProjectFinalized.Error())
			return
		}
		p.Status = *req.Status
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.UpdateProject(r.Context(), p); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	if err := h.store.DeleteProject(r.Context(), p.ID); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Finalize closes the project to further lot and evaluation changes and
// announces its final ranking.
func (h *ProjectsHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	if p.Status == store.ProjectFinalized {
		writeError(w, http.StatusConflict, store.ErrProjectFinalized.Error())
		return
	}

	res, err := h.compare(r, p)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	p.Status = store.ProjectFinalized
	if err := h.store.UpdateProject(r.Context(), p); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	ev := events.ProjectFinalizedEvent{ProjectID: p.ID.String(), At: p.UpdatedAt}
	for _, l := range res.Ranking {
		ev.Ranking = append(ev.Ranking, events.RankedLot{
			LotID:      l.LotID.String(),
			Name:       l.Name,
			Rank:       l.Rank,
			Total:      l.Total,
			Percentage: l.Percentage,
		})
	}
	h.publish("project.finalized", events.SubjectProjectFinalized(p.ID.String()), ev)
	writeJSON(w, http.StatusOK, p)
}
