package handler

import (
	"net/http"

	"github.com/sebcib/codescope/internal/api/response"
	"github.com/sebcib/codescope/internal/gateway"
	"github.com/sebcib/codescope/internal/store"
)

type healthStatus struct {
	Status string `json:"status"`
	Remote string `json:"remote"`
	Local  string `json:"local"`
}

// Health reports overall service state. Local backend failures are the only
// thing that flips the top-level status; the remote being down just means
// degraded saves.
func Health(gw *gateway.Gateway, local store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{
			Status: "ok",
			Remote: gw.Health().String(),
			Local:  "ok",
		}
		if err := local.Ping(r.Context()); err != nil {
			status.Status = "degraded"
			status.Local = "unreachable"
		}
		response.JSON(w, status)
	}
}
