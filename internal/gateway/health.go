package gateway

import (
	"context"
	"fmt"
)

// Health is the gateway's view of the remote backend.
//
//	UNKNOWN  -> HEALTHY   probe succeeds
//	HEALTHY  -> DEGRADED  a remote operation fails
//	DEGRADED -> HEALTHY   probe succeeds (checked on every operation)
//
// DEGRADED is not terminal: every operation re-probes while degraded, so a
// stale flag can never block an operation permanently.
type Health int

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthDegraded
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Health reports the current state without probing.
func (g *Gateway) Health() Health {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.health
}

// remoteHealthy decides whether the next operation should use the remote
// backend. While not HEALTHY it probes with a bounded timeout, so recovery
// is detected without an explicit trigger.
func (g *Gateway) remoteHealthy(ctx context.Context) bool {
	if g.remote == nil {
		return false
	}

	g.mu.Lock()
	current := g.health
	g.mu.Unlock()
	if current == HealthHealthy {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()

	if err := g.remote.Ping(probeCtx); err != nil {
		g.setHealth(HealthDegraded)
		return false
	}
	g.setHealth(HealthHealthy)
	g.logger.Info("remote backend reachable")
	return true
}

// markDegraded transitions to DEGRADED after a failed remote operation.
func (g *Gateway) markDegraded(op string, err error) {
	g.setHealth(HealthDegraded)
	g.logger.Warn("remote backend degraded", "op", op, "error", err)
}

func (g *Gateway) setHealth(h Health) {
	g.mu.Lock()
	g.health = h
	g.mu.Unlock()
}

// TransientBackendError marks a failure the gateway recovered from by
// falling back to the other backend. Surfaced to the UI only as a status
// indicator, never as a request failure.
type TransientBackendError struct {
	Backend string
	Err     error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Err)
}

func (e *TransientBackendError) Unwrap() error { return e.Err }
