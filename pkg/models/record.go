package models

import (
	"time"
)

// Origin marks which backend currently holds the authoritative copy of a record.
type Origin string

const (
	OriginRemote     Origin = "remote"
	OriginLocal      Origin = "local"
	OriginReconciled Origin = "reconciled"
)

// Diagnostic kinds produced by the static analyzer.
const (
	KindSyntax  = "syntax"
	KindLogical = "logical"
	KindStyle   = "style"
)

// Diagnostic is a single finding from the static analyzer.
type Diagnostic struct {
	Line    int    `db:"line"    json:"line"`
	Kind    string `db:"kind"    json:"kind"`
	Message string `db:"message" json:"message"`
}

// Suggestion is a remediation proposal from the suggestion service.
// DiagnosticRef is the index of the diagnostic it addresses, or nil when
// the suggestion applies to the file as a whole.
type Suggestion struct {
	DiagnosticRef *int   `db:"diagnostic_ref" json:"diagnostic_ref,omitempty"`
	Explanation   string `db:"explanation"    json:"explanation"`
	ProposedFix   string `db:"proposed_fix"   json:"proposed_fix"`
}

// AnalysisRecord is one immutable result of analyzing a source file.
// Everything except Origin is fixed at creation; the gateway may retag
// Origin during reconciliation. IDs are UUID strings; reconciliation may
// archive a divergent local copy under a suffixed id, so the type is a
// string rather than uuid.UUID.
type AnalysisRecord struct {
	ID           string             `db:"id"            json:"id"`
	CreatedAt    time.Time          `db:"created_at"    json:"created_at"`
	SourceDigest string             `db:"source_digest" json:"source_digest"`
	SourceRef    string             `db:"source_ref"    json:"source_ref"`
	Diagnostics  []Diagnostic       `db:"-"             json:"diagnostics"`
	Suggestions  []Suggestion       `db:"-"             json:"suggestions"`
	Metrics      map[string]float64 `db:"-"             json:"metrics"`
	Origin       Origin             `db:"origin"        json:"origin"`
}

// RecordSummary is the listing projection of an AnalysisRecord.
type RecordSummary struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	SourceDigest    string    `json:"source_digest"`
	SourceRef       string    `json:"source_ref"`
	DiagnosticCount int       `json:"diagnostic_count"`
	SuggestionCount int       `json:"suggestion_count"`
	Origin          Origin    `json:"origin"`
}

// Summary projects the record for history listings.
func (r *AnalysisRecord) Summary() RecordSummary {
	return RecordSummary{
		ID:              r.ID,
		CreatedAt:       r.CreatedAt,
		SourceDigest:    r.SourceDigest,
		SourceRef:       r.SourceRef,
		DiagnosticCount: len(r.Diagnostics),
		SuggestionCount: len(r.Suggestions),
		Origin:          r.Origin,
	}
}

// Clone returns a deep copy. Reconciliation archives copies under new ids
// and must not alias the original's slices.
func (r *AnalysisRecord) Clone() *AnalysisRecord {
	out := *r
	out.Diagnostics = append([]Diagnostic(nil), r.Diagnostics...)
	out.Suggestions = append([]Suggestion(nil), r.Suggestions...)
	out.Metrics = make(map[string]float64, len(r.Metrics))
	for k, v := range r.Metrics {
		out.Metrics[k] = v
	}
	return &out
}

// Statistics aggregates history for the statistics endpoint. Computed
// locally, never fetched from the suggestion service.
type Statistics struct {
	TotalAnalyses    int        `json:"total_analyses"`
	TotalDiagnostics int        `json:"total_diagnostics"`
	TotalSuggestions int        `json:"total_suggestions"`
	FirstAnalysisAt  *time.Time `json:"first_analysis_at,omitempty"`
	LastAnalysisAt   *time.Time `json:"last_analysis_at,omitempty"`
}
