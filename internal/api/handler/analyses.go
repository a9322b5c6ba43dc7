// Package handler implements the HTTP handlers the UI talks to. Nothing in
// here touches a backend directly; everything goes through the gateway.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sebcib/codescope/internal/analysis"
	"github.com/sebcib/codescope/internal/api/response"
	"github.com/sebcib/codescope/internal/gateway"
	"github.com/sebcib/codescope/internal/store"
	"github.com/sebcib/codescope/pkg/models"
)

// maxSourceBytes caps an analysis request body.
const maxSourceBytes = 1 << 20

type analyzeRequest struct {
	Source string `json:"source"`
	Path   string `json:"path,omitempty"`
}

type analyzeResponse struct {
	Record       *models.AnalysisRecord `json:"record"`
	Origin       models.Origin          `json:"origin"`
	Deferred     bool                   `json:"deferred"`
	Deduplicated bool                   `json:"deduplicated"`
	Status       string                 `json:"status,omitempty"`
}

// Analyze runs the pipeline for one source submission.
func Analyze(svc *analysis.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxSourceBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"Request body must be JSON with a source field", nil)
			return
		}
		if req.Source == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"source is required", map[string][]string{"source": {"source is required"}})
			return
		}

		result, err := svc.Run(r.Context(), req.Source, req.Path)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR",
				"Failed to persist analysis", nil)
			return
		}

		resp := analyzeResponse{
			Record:       result.Record,
			Origin:       result.Ack.Origin,
			Deferred:     result.Ack.Deferred,
			Deduplicated: result.Deduplicated,
		}
		if result.Ack.Deferred {
			resp.Status = "saved locally, will sync"
		}
		if result.Deduplicated {
			response.JSON(w, resp)
			return
		}
		response.Created(w, resp)
	}
}

// ListAnalyses returns history summaries, newest first.
func ListAnalyses(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.ListFilter{
			SourceDigest: r.URL.Query().Get("digest"),
			Limit:        queryInt(r, "limit"),
			Offset:       queryInt(r, "offset"),
		}
		if o := r.URL.Query().Get("origin"); o != "" {
			filter.Origin = models.Origin(o)
		}
		if s := r.URL.Query().Get("since"); s != "" {
			since, err := time.Parse(time.RFC3339, s)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
					"since must be RFC3339", nil)
				return
			}
			filter.Since = since
		}

		summaries, err := gw.List(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR",
				"Failed to list history", nil)
			return
		}
		if summaries == nil {
			summaries = []models.RecordSummary{}
		}
		response.JSON(w, summaries)
	}
}

// GetAnalysis returns one full record by id.
func GetAnalysis(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := gw.Get(r.Context(), id)
		if errors.Is(err, models.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "RECORD_NOT_FOUND",
				"record not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR",
				"Failed to load record", nil)
			return
		}
		response.JSON(w, rec)
	}
}

// DeleteAnalysis removes one record from history.
func DeleteAnalysis(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := gw.Delete(r.Context(), id)
		if errors.Is(err, models.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "RECORD_NOT_FOUND",
				"record not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR",
				"Failed to delete record", nil)
			return
		}
		response.NoContent(w)
	}
}

// Reconcile triggers a reconciliation pass.
func Reconcile(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := gw.Reconcile(r.Context())

		var transient *gateway.TransientBackendError
		if errors.As(err, &transient) {
			response.Error(w, http.StatusServiceUnavailable, "REMOTE_UNAVAILABLE",
				"Remote backend is unreachable; records remain saved locally", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "RECONCILE_ERROR",
				"Reconciliation failed", nil)
			return
		}
		response.JSON(w, report)
	}
}

// Statistics returns locally computed history aggregates.
func Statistics(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := gw.Statistics(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR",
				"Failed to compute statistics", nil)
			return
		}
		response.JSON(w, stats)
	}
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0
	}
	return i
}
