package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cardforge/cardforge-api/internal/api"
	apimiddleware "github.com/cardforge/cardforge-api/internal/api/middleware"
)

// newRouter configures the API router with all routes and middleware.
func newRouter(jobHandler *api.JobHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Use(apimiddleware.RequireOwner)

		r.Post("/jobs", jobHandler.SubmitJob)
		r.Get("/jobs", jobHandler.ListJobs)
		r.Get("/jobs/{id}", jobHandler.GetJob)
		r.Post("/jobs/{id}/retry", jobHandler.RetryJob)
		r.Post("/jobs/{id}/cancel", jobHandler.CancelJob)

		r.Get("/artifacts/{id}", jobHandler.GetArtifact)
		r.Get("/artifacts/{id}/download", jobHandler.DownloadArtifact)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
