// Package analysis orchestrates one analysis run: lint, remote suggestions,
// record assembly and persistence through the gateway.
package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sebcib/codescope/internal/gateway"
	"github.com/sebcib/codescope/internal/lint"
	"github.com/sebcib/codescope/internal/record"
	"github.com/sebcib/codescope/internal/suggest"
	"github.com/sebcib/codescope/pkg/models"
)

// Result is the outcome of one run: the persisted (or deduplicated) record
// and where the write landed.
type Result struct {
	Record       *models.AnalysisRecord
	Ack          gateway.Ack
	Deduplicated bool
	// SuggestError is set when the suggestion service failed; the record was
	// still persisted with empty suggestions.
	SuggestError error
}

// Service runs the analysis pipeline.
type Service struct {
	linter   lint.Runner
	provider suggest.Provider
	builder  *record.Builder
	gw       *gateway.Gateway
	logger   *slog.Logger
}

// NewService wires the pipeline. provider may be nil when no suggestion
// service is configured; records then carry empty suggestion lists.
func NewService(linter lint.Runner, provider suggest.Provider, builder *record.Builder, gw *gateway.Gateway) *Service {
	return &Service{
		linter:   linter,
		provider: provider,
		builder:  builder,
		gw:       gw,
		logger:   slog.Default().With("component", "analysis"),
	}
}

// Run analyzes source and persists the resulting record. A suggestion
// failure never fails the run and never changes the record's origin; it is
// reported in the Result for the status indicator.
func (s *Service) Run(ctx context.Context, source, path string) (*Result, error) {
	diags := s.linter.Analyze(source)

	var suggestions []models.Suggestion
	var suggestErr error
	if s.provider != nil {
		suggestions, suggestErr = s.provider.Suggest(ctx, excerpt(source), diags)
		if suggestErr != nil {
			s.logger.Warn("suggestion service failed, continuing without suggestions",
				"provider", s.provider.Name(), "error", suggestErr)
			suggestions = nil
		}
	}

	rec, existingID := s.builder.Build(record.Input{
		Source:      source,
		Path:        path,
		Diagnostics: diags,
		Suggestions: suggestions,
		Metrics:     lint.Metrics(source, len(diags)),
	})
	if existingID != "" {
		existing, err := s.gw.Get(ctx, existingID)
		if err != nil {
			return nil, fmt.Errorf("loading deduplicated record: %w", err)
		}
		return &Result{
			Record:       existing,
			Ack:          gateway.Ack{ID: existing.ID, Origin: existing.Origin},
			Deduplicated: true,
			SuggestError: suggestErr,
		}, nil
	}

	ack, err := s.gw.Write(ctx, rec)
	if err != nil {
		s.builder.Forget(rec.SourceDigest)
		return nil, fmt.Errorf("persisting record: %w", err)
	}
	return &Result{Record: rec, Ack: ack, SuggestError: suggestErr}, nil
}

// excerpt bounds the source sent to the suggestion service. Diagnostics
// carry line numbers, so the head of the file is the most useful context.
func excerpt(source string) string {
	const maxBytes = 4096
	if len(source) <= maxBytes {
		return source
	}
	cut := maxBytes
	for cut > 0 && source[cut]&0xC0 == 0x80 {
		cut--
	}
	return source[:cut]
}
