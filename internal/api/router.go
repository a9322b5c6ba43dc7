package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/sebcib/codescope/internal/api/middleware"
	"github.com/sebcib/codescope/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler     http.HandlerFunc
	AnalyzeHandler    http.HandlerFunc
	ListAnalyses      http.HandlerFunc
	GetAnalysis       http.HandlerFunc
	DeleteAnalysis    http.HandlerFunc
	StatisticsHandler http.HandlerFunc
	ReconcileHandler  http.HandlerFunc

	StoreCredential  http.HandlerFunc
	CredentialStatus http.HandlerFunc
	ClearCredential  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Post("/api/v1/analyze", orNotImplemented(deps.AnalyzeHandler))
	r.Get("/api/v1/analyses", orNotImplemented(deps.ListAnalyses))
	r.Get("/api/v1/analyses/{id}", orNotImplemented(deps.GetAnalysis))
	r.Delete("/api/v1/analyses/{id}", orNotImplemented(deps.DeleteAnalysis))
	r.Get("/api/v1/statistics", orNotImplemented(deps.StatisticsHandler))
	r.Post("/api/v1/reconcile", orNotImplemented(deps.ReconcileHandler))

	r.Put("/api/v1/credential", orNotImplemented(deps.StoreCredential))
	r.Get("/api/v1/credential", orNotImplemented(deps.CredentialStatus))
	r.Delete("/api/v1/credential", orNotImplemented(deps.ClearCredential))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
