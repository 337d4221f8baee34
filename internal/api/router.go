package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/Comparador/internal/config"
	"github.com/MikeSquared-Agency/Comparador/internal/events"
	"github.com/MikeSquared-Agency/Comparador/internal/metrics"
	"github.com/MikeSquared-Agency/Comparador/internal/store"
)

func NewRouter(s store.Store, ev events.Client, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	if cfg.Server.TrustProxy {
		r.Use(chiMiddleware.RealIP)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(RequestLogger(logger, m))
	r.Use(RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	if d := cfg.RequestTimeout(); d > 0 {
		r.Use(chiMiddleware.Timeout(d))
	}

	templates := NewTemplatesHandler(s, ev, m, logger)
	projects := NewProjectsHandler(s, ev, m, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(NewAuthenticator(cfg.Auth)))

		// Any authenticated user may read rubrics to evaluate against them.
		r.Get("/templates", templates.List)
		r.Get("/templates/active", templates.Active)
		r.Get("/templates/{id}", templates.Get)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))

			r.Post("/templates", templates.Create)
			r.Post("/templates/{id}/activate", templates.Activate)
			r.Delete("/templates/{id}", templates.Delete)
			r.Put("/templates/{id}/order", templates.Reorder)

			r.Post("/templates/{id}/classifications", templates.CreateClassification)
			r.Patch("/classifications/{id}", templates.UpdateClassification)
			r.Delete("/classifications/{id}", templates.DeleteClassification)

			r.Post("/classifications/{id}/criteria", templates.CreateCriterion)
			r.Patch("/criteria/{id}", templates.UpdateCriterion)
			r.Delete("/criteria/{id}", templates.DeleteCriterion)

			r.Post("/criteria/{id}/factors", templates.CreateFactor)
			r.Patch("/factors/{id}", templates.UpdateFactor)
			r.Delete("/factors/{id}", templates.DeleteFactor)
		})

		r.Get("/projects", projects.List)
		r.Post("/projects", projects.Create)
		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", projects.Get)
			r.Patch("/", projects.Update)
			r.Delete("/", projects.Delete)
			r.Post("/finalize", projects.Finalize)

			r.Get("/lots", projects.ListLots)
			r.Post("/lots", projects.CreateLot)
			r.Put("/lots/order", projects.ReorderLots)
			r.Patch("/lots/{lotId}", projects.UpdateLot)
			r.Delete("/lots/{lotId}", projects.DeleteLot)
			r.Put("/lots/{lotId}/evaluation", projects.SaveEvaluation)

			r.Get("/evaluations", projects.ListEvaluations)
			r.Get("/results", projects.Results)
		})
	})

	return r
}

// NewMetricsRouter serves health and Prometheus metrics from gatherer.
func NewMetricsRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
