// Package lint is the static-analysis collaborator: line-oriented,
// language-agnostic checks over source text. It is best-effort by contract;
// unparsable input still yields a diagnostic list, never an error.
package lint

import (
	"strings"

	"github.com/sebcib/codescope/pkg/models"
)

const maxLineLength = 120

// Runner produces diagnostics for source text. The default implementation
// is Analyzer; tests substitute their own.
type Runner interface {
	Analyze(source string) []models.Diagnostic
}

// Analyzer is the built-in heuristic lint. Stateless and safe for
// concurrent use.
type Analyzer struct{}

// New returns the built-in analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze scans source and returns diagnostics ordered by line number.
// Always returns a non-nil slice.
func (a *Analyzer) Analyze(source string) []models.Diagnostic {
	diags := []models.Diagnostic{}
	lines := strings.Split(source, "\n")

	depth := 0
	for i, line := range lines {
		lineNo := i + 1

		for _, r := range line {
			switch r {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				depth--
				if depth < 0 {
					diags = append(diags, models.Diagnostic{
						Line:    lineNo,
						Kind:    models.KindSyntax,
						Message: "unmatched closing bracket",
					})
					depth = 0
				}
			}
		}

		if hasUnterminatedQuote(line) {
			diags = append(diags, models.Diagnostic{
				Line:    lineNo,
				Kind:    models.KindSyntax,
				Message: "possibly unterminated string literal",
			})
		}

		trimmed := strings.TrimSpace(line)
		if strings.Contains(trimmed, "TODO") || strings.Contains(trimmed, "FIXME") {
			diags = append(diags, models.Diagnostic{
				Line:    lineNo,
				Kind:    models.KindLogical,
				Message: "unresolved TODO/FIXME marker",
			})
		}

		if len(line) > maxLineLength {
			diags = append(diags, models.Diagnostic{
				Line:    lineNo,
				Kind:    models.KindStyle,
				Message: "line exceeds 120 characters",
			})
		}
		if trimmed != "" && line != strings.TrimRight(line, " \t") {
			diags = append(diags, models.Diagnostic{
				Line:    lineNo,
				Kind:    models.KindStyle,
				Message: "trailing whitespace",
			})
		}
		if mixedIndentation(line) {
			diags = append(diags, models.Diagnostic{
				Line:    lineNo,
				Kind:    models.KindStyle,
				Message: "mixed tab and space indentation",
			})
		}
	}

	if depth > 0 {
		diags = append(diags, models.Diagnostic{
			Line:    len(lines),
			Kind:    models.KindSyntax,
			Message: "unclosed bracket at end of input",
		})
	}

	return diags
}

// Metrics computes local source metrics. These are never sourced from the
// suggestion service.
func Metrics(source string, diagnosticCount int) map[string]float64 {
	lines := strings.Split(source, "\n")

	var nonEmpty, comments, blank, longest int
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			blank++
		case strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//"):
			comments++
			nonEmpty++
		default:
			nonEmpty++
		}
		if len(line) > longest {
			longest = len(line)
		}
	}

	return map[string]float64{
		"lines_of_code":    float64(len(lines)),
		"non_empty_lines":  float64(nonEmpty),
		"comment_lines":    float64(comments),
		"blank_lines":      float64(blank),
		"longest_line":     float64(longest),
		"diagnostic_count": float64(diagnosticCount),
	}
}

// hasUnterminatedQuote reports an odd number of unescaped double quotes on
// a single line. Deliberately crude: multi-line strings produce at most a
// "possibly" diagnostic, which the contract allows.
func hasUnterminatedQuote(line string) bool {
	count := 0
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			count++
		}
	}
	return count%2 == 1
}

func mixedIndentation(line string) bool {
	sawTab, sawSpace := false, false
	for _, r := range line {
		switch r {
		case '\t':
			sawTab = true
		case ' ':
			sawSpace = true
		default:
			return sawTab && sawSpace
		}
	}
	return false
}

var _ Runner = (*Analyzer)(nil)
