package suggest

import (
	"context"

	"github.com/sebcib/codescope/pkg/models"
)

// MockProvider satisfies Provider for testing.
type MockProvider struct {
	Name_       string
	SuggestFunc func(ctx context.Context, excerpt string, diags []models.Diagnostic) ([]models.Suggestion, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Suggest(ctx context.Context, excerpt string, diags []models.Diagnostic) ([]models.Suggestion, error) {
	if m.SuggestFunc != nil {
		return m.SuggestFunc(ctx, excerpt, diags)
	}
	return []models.Suggestion{}, nil
}

// NewMockProvider returns a provider with one canned suggestion per
// diagnostic.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		SuggestFunc: func(_ context.Context, _ string, diags []models.Diagnostic) ([]models.Suggestion, error) {
			out := make([]models.Suggestion, 0, len(diags))
			for i := range diags {
				ref := i
				out = append(out, models.Suggestion{
					DiagnosticRef: &ref,
					Explanation:   "Mock explanation for testing",
					ProposedFix:   "Mock fix",
				})
			}
			return out, nil
		},
	}
}

// NewFailingProvider returns a provider that always returns err.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		SuggestFunc: func(_ context.Context, _ string, _ []models.Diagnostic) ([]models.Suggestion, error) {
			return nil, err
		},
	}
}
