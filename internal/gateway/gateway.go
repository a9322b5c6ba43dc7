// Package gateway is the single source of truth for reads and writes of
// analysis records. It hides the backend topology: writes go remote-first
// with a durable local fallback, reads follow health, and reconciliation
// drains locally-stranded records once the remote backend returns.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sebcib/codescope/internal/cache"
	"github.com/sebcib/codescope/internal/config"
	"github.com/sebcib/codescope/internal/store"
	"github.com/sebcib/codescope/pkg/models"
)

// retryBackoff is the pause before the single immediate retry of a failed
// remote write. There are no further retries; the local fallback takes over.
const retryBackoff = 250 * time.Millisecond

// Ack reports where a write landed. Deferred means the remote backend was
// unreachable and the record was durably saved locally, to be pushed by the
// next reconciliation ("saved locally, will sync").
type Ack struct {
	ID       string        `json:"id"`
	Origin   models.Origin `json:"origin"`
	Deferred bool          `json:"deferred"`
}

// Gateway routes operations between the remote and local backends. remote
// may be nil when no remote backend is configured; the gateway then runs
// permanently on the local mirror.
type Gateway struct {
	remote store.Store
	local  store.Store
	cache  cache.Cache
	logger *slog.Logger

	writeTimeout time.Duration
	probeTimeout time.Duration
	summaryTTL   time.Duration

	mu     sync.Mutex
	health Health

	mirrors sync.WaitGroup
}

// New creates a Gateway. local must be non-nil; it is the fallback of last
// resort.
func New(remote, local store.Store, c cache.Cache, cfg config.RemoteConfig, summaryTTL time.Duration) *Gateway {
	if c == nil {
		c = cache.NoopCache{}
	}
	if summaryTTL <= 0 {
		summaryTTL = 30 * time.Second
	}
	return &Gateway{
		remote:       remote,
		local:        local,
		cache:        c,
		logger:       slog.Default().With("component", "gateway"),
		writeTimeout: cfg.WriteTimeout,
		probeTimeout: cfg.ProbeTimeout,
		summaryTTL:   summaryTTL,
		health:       HealthUnknown,
	}
}

// Close waits for outstanding local mirror writes to finish.
func (g *Gateway) Close() {
	g.mirrors.Wait()
}

// Write persists one record. The caller's record is tagged with the origin
// it landed under. The operation fails only if both backends reject the
// write; a remote failure alone degrades to a deferred local save.
func (g *Gateway) Write(ctx context.Context, rec *models.AnalysisRecord) (Ack, error) {
	if g.remoteHealthy(ctx) {
		rec.Origin = models.OriginRemote
		err := g.remotePut(ctx, rec)
		if err == nil {
			g.mirrorLocally(rec)
			g.invalidateSummaries(ctx)
			return Ack{ID: rec.ID, Origin: rec.Origin}, nil
		}
		g.markDegraded("write", err)
	}

	rec.Origin = models.OriginLocal
	if err := g.local.Put(ctx, rec); err != nil {
		return Ack{}, fmt.Errorf("local write after remote failure: %w", err)
	}
	g.invalidateSummaries(ctx)
	return Ack{ID: rec.ID, Origin: rec.Origin, Deferred: true}, nil
}

// remotePut attempts the remote write with a hard per-attempt timeout and
// exactly one retry after a short backoff.
func (g *Gateway) remotePut(ctx context.Context, rec *models.AnalysisRecord) error {
	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.writeTimeout)
		defer cancel()
		return g.remote.Put(attemptCtx, rec)
	}

	err := attempt()
	if err == nil {
		return nil
	}
	g.logger.Warn("remote write failed, retrying once", "id", rec.ID, "error", err)

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return &TransientBackendError{Backend: "remote", Err: ctx.Err()}
	}

	if err := attempt(); err != nil {
		return &TransientBackendError{Backend: "remote", Err: err}
	}
	return nil
}

// mirrorLocally copies a remotely-written record into the local mirror in
// the background. Best effort: a mirror failure is logged, never surfaced.
func (g *Gateway) mirrorLocally(rec *models.AnalysisRecord) {
	clone := rec.Clone()
	g.mirrors.Add(1)
	go func() {
		defer g.mirrors.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.writeTimeout)
		defer cancel()
		if err := g.local.Put(ctx, clone); err != nil {
			g.logger.Warn("local mirror write failed", "id", clone.ID, "error", err)
		}
	}()
}

// List returns history summaries ordered by (created_at desc, id desc),
// from the remote backend when healthy, else from the local mirror. Results
// pass through the summary cache when one is configured.
func (g *Gateway) List(ctx context.Context, filter store.ListFilter) ([]models.RecordSummary, error) {
	key, cached := g.cachedSummaries(ctx, filter)
	if cached != nil {
		return cached, nil
	}

	var summaries []models.RecordSummary
	var err error
	remoteOK := false
	if g.remoteHealthy(ctx) {
		summaries, err = g.remote.List(ctx, filter)
		if err != nil {
			g.markDegraded("list", err)
		} else {
			// An empty remote result is still authoritative; only a failed
			// read falls back to the mirror.
			remoteOK = true
		}
	}
	if !remoteOK {
		if summaries, err = g.local.List(ctx, filter); err != nil {
			return nil, fmt.Errorf("local list: %w", err)
		}
	}

	if key != "" && len(summaries) > 0 {
		if raw, err := json.Marshal(summaries); err == nil {
			_ = g.cache.Set(ctx, key, raw, g.summaryTTL)
		}
	}
	return summaries, nil
}

func (g *Gateway) cachedSummaries(ctx context.Context, filter store.ListFilter) (string, []models.RecordSummary) {
	version, err := g.cache.SummaryVersion(ctx)
	if err != nil {
		return "", nil
	}
	repr := fmt.Sprintf("%s|%s|%d|%d|%d",
		filter.SourceDigest, filter.Origin, filter.Since.UnixNano(), filter.Limit, filter.Offset)
	key := cache.SummariesKey(version, cache.HashFilter(repr))

	raw, ok, err := g.cache.Get(ctx, key)
	if err != nil || !ok {
		return key, nil
	}
	var summaries []models.RecordSummary
	if err := json.Unmarshal(raw, &summaries); err != nil {
		return key, nil
	}
	return key, summaries
}

func (g *Gateway) invalidateSummaries(ctx context.Context) {
	if err := g.cache.BumpSummaryVersion(ctx); err != nil {
		g.logger.Warn("summary cache invalidation failed", "error", err)
	}
}

// Get returns the full record, consulting the remote backend first when
// healthy and falling through to the local mirror. Absent from both means
// models.ErrNotFound.
func (g *Gateway) Get(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	if g.remoteHealthy(ctx) {
		rec, err := g.remote.Get(ctx, id)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			g.markDegraded("get", err)
		}
	}

	rec, err := g.local.Get(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("local get: %w", err)
	}
	return rec, nil
}

// Delete removes a record from every backend that holds it. models.ErrNotFound
// only when neither backend had the record; a reachable remote that fails the
// delete aborts before touching the mirror, so the backends cannot diverge.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	found := false
	if g.remoteHealthy(ctx) {
		err := g.remote.Delete(ctx, id)
		switch {
		case err == nil:
			found = true
		case errors.Is(err, models.ErrNotFound):
		default:
			g.markDegraded("delete", err)
			return &TransientBackendError{Backend: "remote", Err: err}
		}
	}

	err := g.local.Delete(ctx, id)
	if err == nil {
		found = true
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("local delete: %w", err)
	}

	if !found {
		return models.ErrNotFound
	}
	g.invalidateSummaries(ctx)
	return nil
}

// Statistics aggregates the visible history. Like List it follows health.
// Pages through the whole listing so totals cover every record, not just
// the first page.
func (g *Gateway) Statistics(ctx context.Context) (*models.Statistics, error) {
	const pageSize = 200

	stats := &models.Statistics{}
	var first, last time.Time
	for offset := 0; ; offset += pageSize {
		page, err := g.List(ctx, store.ListFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}

		stats.TotalAnalyses += len(page)
		for _, s := range page {
			stats.TotalDiagnostics += s.DiagnosticCount
			stats.TotalSuggestions += s.SuggestionCount
		}
		if len(page) > 0 {
			if last.IsZero() {
				last = page[0].CreatedAt
			}
			first = page[len(page)-1].CreatedAt
		}
		if len(page) < pageSize {
			break
		}
	}

	if stats.TotalAnalyses > 0 {
		stats.FirstAnalysisAt = &first
		stats.LastAnalysisAt = &last
	}
	return stats, nil
}
