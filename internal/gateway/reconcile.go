package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sebcib/codescope/internal/store"
	"github.com/sebcib/codescope/pkg/models"
)

// ArchiveSuffix is appended to a record id when reconciliation archives a
// divergent local copy instead of discarding it.
const ArchiveSuffix = "~local"

// Conflict records one same-id, different-content collision resolved during
// reconciliation. The remote copy won; the local copy survives under
// ArchivedID.
type Conflict struct {
	ID         string `json:"id"`
	ArchivedID string `json:"archived_id"`
}

// ReconciliationReport summarizes one reconciliation pass. Conflicts are
// reported, never silently dropped.
type ReconciliationReport struct {
	Pushed         int        `json:"pushed"`
	AlreadyPresent int        `json:"already_present"`
	Conflicts      []Conflict `json:"conflicts"`
	Failures       []string   `json:"failures,omitempty"`
}

// Reconcile pushes local-origin records to the remote backend and resolves
// conflicts by origin precedence: remote wins, the local divergent copy is
// archived under a suffixed id. On success the gateway transitions back to
// HEALTHY.
func (g *Gateway) Reconcile(ctx context.Context) (*ReconciliationReport, error) {
	if g.remote == nil {
		return nil, fmt.Errorf("no remote backend configured")
	}

	probeCtx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	err := g.remote.Ping(probeCtx)
	cancel()
	if err != nil {
		g.setHealth(HealthDegraded)
		return nil, &TransientBackendError{Backend: "remote", Err: err}
	}

	report := &ReconciliationReport{Conflicts: []Conflict{}}

	// Records that stay local-origin after their pass (failures and archive
	// copies) are skipped over on the next page; everything else leaves the
	// filter once reconciled.
	skipped := 0
	for {
		stranded, err := g.local.List(ctx, store.ListFilter{
			Origin: models.OriginLocal,
			Limit:  200,
			Offset: skipped,
		})
		if err != nil {
			return nil, fmt.Errorf("listing stranded records: %w", err)
		}
		if len(stranded) == 0 {
			break
		}

		for _, sum := range stranded {
			if strings.HasSuffix(sum.ID, ArchiveSuffix) {
				skipped++
				continue
			}
			if err := g.reconcileOne(ctx, sum.ID, report); err != nil {
				g.logger.Warn("reconciliation of record failed", "id", sum.ID, "error", err)
				report.Failures = append(report.Failures, sum.ID)
				skipped++
			}
		}
	}

	g.setHealth(HealthHealthy)
	g.invalidateSummaries(ctx)
	g.logger.Info("reconciliation complete",
		"pushed", report.Pushed,
		"already_present", report.AlreadyPresent,
		"conflicts", len(report.Conflicts),
		"failures", len(report.Failures))
	return report, nil
}

func (g *Gateway) reconcileOne(ctx context.Context, id string, report *ReconciliationReport) error {
	localRec, err := g.local.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading local record: %w", err)
	}

	remoteRec, err := g.remote.Get(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		// Straightforward push: the record was stranded locally.
		pushed := localRec.Clone()
		pushed.Origin = models.OriginReconciled
		if err := g.remote.Put(ctx, pushed); err != nil {
			return fmt.Errorf("pushing record: %w", err)
		}
		if err := g.local.UpdateOrigin(ctx, id, models.OriginReconciled); err != nil {
			return fmt.Errorf("retagging local record: %w", err)
		}
		report.Pushed++
		return nil

	case err != nil:
		return fmt.Errorf("checking remote copy: %w", err)
	}

	if sameContent(localRec, remoteRec) {
		// The remote copy already exists (e.g. a mirror raced the outage);
		// just retag the local one.
		if err := g.local.UpdateOrigin(ctx, id, models.OriginReconciled); err != nil {
			return fmt.Errorf("retagging local record: %w", err)
		}
		report.AlreadyPresent++
		return nil
	}

	// Same id, different content: remote wins. Archive the local copy under
	// a suffixed id so nothing is lost, then mirror the remote copy.
	archived := localRec.Clone()
	archived.ID = id + ArchiveSuffix
	archived.Origin = models.OriginLocal
	if err := g.local.Put(ctx, archived); err != nil {
		return fmt.Errorf("archiving local copy: %w", err)
	}
	if err := g.local.Put(ctx, remoteRec.Clone()); err != nil {
		return fmt.Errorf("mirroring remote copy: %w", err)
	}

	report.Conflicts = append(report.Conflicts, Conflict{ID: id, ArchivedID: archived.ID})
	g.logger.Warn("reconciliation conflict, remote copy kept",
		"id", id, "archived_id", archived.ID)
	return nil
}

// sameContent reports whether two copies of a record carry the same
// content. Digest plus creation time is sufficient to detect a retried
// duplicate submission.
func sameContent(a, b *models.AnalysisRecord) bool {
	return a.SourceDigest == b.SourceDigest && a.CreatedAt.Equal(b.CreatedAt)
}
