package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sebcib/codescope/internal/config"
	"github.com/sebcib/codescope/pkg/models"
)

const maxTokens = 2048

const systemPrompt = `You are a code-remediation assistant. Given a source
excerpt and a numbered list of diagnostics, respond with a JSON object:
{"suggestions":[{"diagnostic_ref":<index or null>,"explanation":"...","proposed_fix":"..."}]}.
Order suggestions to match the diagnostics they address.`

// OpenAIProvider implements Provider against the OpenAI chat API. The API
// key is acquired from the vault per request and released immediately
// after; it is never held in a field.
type OpenAIProvider struct {
	keys    KeySource
	model   string
	timeout time.Duration
}

// NewOpenAIProvider creates a provider with the configured model and time
// budget.
func NewOpenAIProvider(keys KeySource, cfg config.SuggestConfig) *OpenAIProvider {
	return &OpenAIProvider{keys: keys, model: cfg.Model, timeout: cfg.Timeout}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Suggest(ctx context.Context, excerpt string, diags []models.Diagnostic) ([]models.Suggestion, error) {
	handle, err := p.keys.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring credential: %v", ErrProviderUnavailable, err)
	}
	defer handle.Release()

	client := openai.NewClient(handle.Key())

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(excerpt, diags)},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrSuggestionTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrInvalidResponse
	}

	return parseSuggestions(resp.Choices[0].Message.Content, len(diags))
}

func userPrompt(excerpt string, diags []models.Diagnostic) string {
	var b strings.Builder
	b.WriteString("Source excerpt:\n")
	b.WriteString(excerpt)
	b.WriteString("\n\nDiagnostics:\n")
	for i, d := range diags {
		fmt.Fprintf(&b, "%d. line %d [%s] %s\n", i, d.Line, d.Kind, d.Message)
	}
	return b.String()
}

func parseSuggestions(content string, diagCount int) ([]models.Suggestion, error) {
	var payload struct {
		Suggestions []models.Suggestion `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	out := payload.Suggestions
	if out == nil {
		out = []models.Suggestion{}
	}
	// Drop references to diagnostics that do not exist.
	for i := range out {
		if ref := out[i].DiagnosticRef; ref != nil && (*ref < 0 || *ref >= diagCount) {
			out[i].DiagnosticRef = nil
		}
	}
	return out, nil
}

var _ Provider = (*OpenAIProvider)(nil)
