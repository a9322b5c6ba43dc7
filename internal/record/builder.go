// Package record assembles one immutable AnalysisRecord per analysis run.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/sebcib/codescope/internal/dedupe"
	"github.com/sebcib/codescope/pkg/models"
)

// maxExcerptBytes bounds the stored source excerpt so record size is
// independent of the analyzed file size.
const maxExcerptBytes = 512

// Input is the raw material of one analysis run. Suggestions may be empty
// when the suggestion service was unreachable; Metrics are computed locally.
type Input struct {
	Source      string
	Path        string
	Diagnostics []models.Diagnostic
	Suggestions []models.Suggestion
	Metrics     map[string]float64
}

// Builder produces records and collapses duplicate submissions of the same
// content inside the dedup window.
type Builder struct {
	window *dedupe.Window
	now    func() time.Time
}

// NewBuilder creates a Builder over the given dedup window.
func NewBuilder(window *dedupe.Window) *Builder {
	return &Builder{window: window, now: time.Now}
}

// Digest returns the content hash of source. It is computed before any
// mutation so re-analysis of unchanged source yields the same digest.
func Digest(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Build assembles a fresh immutable record. If an identical source digest
// was submitted within the dedup window, Build returns ("", existingID)
// instead of creating a second record.
func (b *Builder) Build(in Input) (rec *models.AnalysisRecord, existingID string) {
	digest := Digest(in.Source)
	id := uuid.New().String()

	if prior, seen := b.window.CheckOrPut(digest, id); seen {
		return nil, prior
	}

	diags := in.Diagnostics
	if diags == nil {
		diags = []models.Diagnostic{}
	}
	suggs := in.Suggestions
	if suggs == nil {
		suggs = []models.Suggestion{}
	}
	metrics := in.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}

	return &models.AnalysisRecord{
		ID:           id,
		CreatedAt:    b.now().UTC(),
		SourceDigest: digest,
		SourceRef:    sourceRef(in.Path, in.Source),
		Diagnostics:  diags,
		Suggestions:  suggs,
		Metrics:      metrics,
	}, ""
}

// Forget unregisters digest from the dedup window. Called when the record
// Build created could not be persisted; otherwise the window would keep
// pointing resubmissions at an id that exists nowhere.
func (b *Builder) Forget(digest string) {
	b.window.Remove(digest)
}

// sourceRef prefers the file path; without one it keeps a bounded excerpt,
// enough to re-display context.
func sourceRef(path, source string) string {
	if path != "" {
		return path
	}
	if len(source) <= maxExcerptBytes {
		return source
	}
	cut := maxExcerptBytes
	// Do not split a UTF-8 sequence.
	for cut > 0 && source[cut]&0xC0 == 0x80 {
		cut--
	}
	return source[:cut]
}
