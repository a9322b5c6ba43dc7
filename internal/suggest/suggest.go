// Package suggest is the remote suggestion-service collaborator. Failure is
// always an explicit error, never an empty success; the caller maps it to
// "no suggestions available" without affecting the record's origin.
package suggest

import (
	"context"

	"github.com/sebcib/codescope/internal/vault"
	"github.com/sebcib/codescope/pkg/models"
)

// Provider produces remediation suggestions for a source excerpt and its
// diagnostics, ordered to match the diagnostics where applicable.
type Provider interface {
	Name() string
	Suggest(ctx context.Context, excerpt string, diags []models.Diagnostic) ([]models.Suggestion, error)
}

// KeySource hands out session-scoped credential handles. *vault.Vault
// satisfies it; tests substitute a fixed key.
type KeySource interface {
	Acquire(ctx context.Context) (*vault.Handle, error)
}
