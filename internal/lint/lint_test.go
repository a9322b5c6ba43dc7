package lint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebcib/codescope/pkg/models"
)

func kinds(diags []models.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Kind
	}
	return out
}

func TestAnalyze_CleanSource(t *testing.T) {
	diags := New().Analyze("def add(a, b):\n\treturn a + b\n")
	assert.NotNil(t, diags)
	assert.Empty(t, diags)
}

func TestAnalyze_UnmatchedClosingBracket(t *testing.T) {
	diags := New().Analyze("x = (1 + 2))")
	require.Len(t, diags, 1)
	assert.Equal(t, models.KindSyntax, diags[0].Kind)
	assert.Equal(t, 1, diags[0].Line)
}

func TestAnalyze_UnclosedBracket(t *testing.T) {
	source := "items = [\n    1,\n    2"
	diags := New().Analyze(source)
	require.Len(t, diags, 1)
	assert.Equal(t, models.KindSyntax, diags[0].Kind)
	assert.Equal(t, 3, diags[0].Line, "reported at the last line of input")
}

func TestAnalyze_UnterminatedQuote(t *testing.T) {
	diags := New().Analyze(`msg = "hello`)
	require.Len(t, diags, 1)
	assert.Equal(t, models.KindSyntax, diags[0].Kind)

	// Escaped quotes do not count.
	assert.Empty(t, New().Analyze(`msg = "he said \"hi\""`))
}

func TestAnalyze_TodoMarker(t *testing.T) {
	diags := New().Analyze("# TODO handle overflow\nx = 1")
	require.Len(t, diags, 1)
	assert.Equal(t, models.KindLogical, diags[0].Kind)
	assert.Equal(t, 1, diags[0].Line)
}

func TestAnalyze_StyleChecks(t *testing.T) {
	long := "x = 1  # " + strings.Repeat("y", maxLineLength)
	trailing := "x = 2  "
	mixed := "\t    x = 3"

	diags := New().Analyze(long + "\n" + trailing + "\n" + mixed)
	assert.Equal(t, []string{models.KindStyle, models.KindStyle, models.KindStyle}, kinds(diags))
	assert.Equal(t, []int{1, 2, 3}, []int{diags[0].Line, diags[1].Line, diags[2].Line})
}

func TestAnalyze_BlankLineTrailingWhitespaceIgnored(t *testing.T) {
	assert.Empty(t, New().Analyze("x = 1\n   \ny = 2"))
}

func TestAnalyze_MultipleKindsOrderedByLine(t *testing.T) {
	source := "# FIXME broken\nx = ((1)\ny = 1 "
	diags := New().Analyze(source)
	require.NotEmpty(t, diags)
	for i := 1; i < len(diags); i++ {
		assert.GreaterOrEqual(t, diags[i].Line, diags[i-1].Line)
	}
}

func TestMetrics(t *testing.T) {
	source := "# comment\n\nx = 1\ny = 22"
	m := Metrics(source, 3)

	assert.Equal(t, 4.0, m["lines_of_code"])
	assert.Equal(t, 3.0, m["non_empty_lines"])
	assert.Equal(t, 1.0, m["comment_lines"])
	assert.Equal(t, 1.0, m["blank_lines"])
	assert.Equal(t, 9.0, m["longest_line"])
	assert.Equal(t, 3.0, m["diagnostic_count"])
}

func TestMetrics_Empty(t *testing.T) {
	m := Metrics("", 0)
	assert.Equal(t, 1.0, m["lines_of_code"])
	assert.Equal(t, 1.0, m["blank_lines"])
	assert.Equal(t, 0.0, m["non_empty_lines"])
}
