// Package api exposes the governance engine over a JSON HTTP API.
//
// Identity is established upstream; handlers trust the X-User-ID,
// X-Organization-ID and X-Project-ID headers.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	httpmw "github.com/wolfeidau/governor/internal/http"
	"github.com/wolfeidau/governor/internal/logger"
	"github.com/wolfeidau/governor/internal/orchestrator"
	"github.com/wolfeidau/governor/internal/quota"
)

// Config controls router construction.
type Config struct {
	// CORSOrigins lists browser origins allowed to call the API. Empty disables CORS.
	CORSOrigins []string
	Logger      zerolog.Logger
	Version     string
}

// Handler serves the governance API.
type Handler struct {
	orc     *orchestrator.Orchestrator
	quota   *quota.Service
	version string
}

// NewHandler creates the API handler.
func NewHandler(orc *orchestrator.Orchestrator, q *quota.Service, version string) *Handler {
	return &Handler{orc: orc, quota: q, version: version}
}

// NewRouter builds the HTTP routes.
func NewRouter(orc *orchestrator.Orchestrator, q *quota.Service, cfg Config) http.Handler {
	h := NewHandler(orc, q, cfg.Version)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.NewHTTPRequests(cfg.Logger).Handler)
	r.Use(httpmw.ClientIPMiddleware())

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{
				"Content-Type",
				httpmw.HeaderUserID,
				httpmw.HeaderOrganizationID,
				httpmw.HeaderProjectID,
			},
			MaxAge: 300,
		}).Handler)
	}

	r.Get("/health", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(httpmw.IdentityMiddleware())

		r.Post("/actions", h.requestAction)
		r.Get("/actions/pending", h.pendingActions)
		r.Post("/actions/{id}/approve", h.approveAction)
		r.Post("/actions/{id}/reject", h.rejectAction)
		r.Post("/actions/{id}/execute", h.executeAction)
		r.Post("/drafts", h.createDraft)
		r.Get("/audit", h.auditLog)

		r.Get("/org/policy-snapshot", h.policySnapshot)
		r.Get("/org/access/{action}", h.checkAccess)
		r.Get("/org/seats", h.seats)
		r.Post("/org/usage/tokens", h.trackTokens)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}
