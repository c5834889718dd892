package principal

import (
	"context"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
)

// EligibilityBackend re-checks every resolved principal against the account
// store, so a deactivated account loses access while its credential is still valid.
type EligibilityBackend struct {
	Backend
	accounts AccountResolver
}

// NewEligibilityBackend wraps next with an account check
func NewEligibilityBackend(next Backend, accounts AccountResolver) *EligibilityBackend {
	return &EligibilityBackend{Backend: next, accounts: accounts}
}

// Resolve returns the principal built from the current account record
func (b *EligibilityBackend) Resolve(ctx context.Context, credential string) (*models.Principal, error) {
	p, err := b.Backend.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}
	return b.accounts.Resolve(ctx, p.ID.String())
}
