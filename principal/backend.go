// Package principal turns session credentials into request principals.
//
// Two interchangeable backends exist: SessionBackend stores an opaque session
// in Redis and TokenBackend issues a signed JWT. Callers depend on Backend
// only and pick one at startup with NewBackend.
package principal

import (
	"context"
	"fmt"
	"time"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/config"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Credential is what a client presents back on every request
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// Backend issues, resolves and invalidates session credentials.
//
// Resolve returns services.ErrAnonymousSession for an empty credential,
// services.ErrVerificationFailed when the credential is unknown, invalid,
// expired or revoked, and services.ErrProviderUnavailable when the backing
// store cannot answer.
type Backend interface {
	Name() string
	Issue(ctx context.Context, user *models.User) (*Credential, error)
	Resolve(ctx context.Context, credential string) (*models.Principal, error)
	Invalidate(ctx context.Context, credential string) error
}

// AccountResolver reloads the current account state for a subject
type AccountResolver interface {
	Resolve(ctx context.Context, subjectID string) (*models.Principal, error)
}

// NewBackend builds the backend selected by cfg.Backend. When
// cfg.EnforceEligibility is set every resolved principal is re-checked against accounts.
func NewBackend(cfg config.SessionConfig, client redis.UniversalClient, keyPrefix string, accounts AccountResolver, logger *zap.Logger) (Backend, error) {
	var backend Backend

	switch cfg.Backend {
	case config.SessionBackendProvider:
		backend = NewSessionBackend(session.NewRedisStore(client, keyPrefix), cfg.TTL, logger)
	case config.SessionBackendToken:
		backend = NewTokenBackend([]byte(cfg.TokenSecret), cfg.TTL, session.NewRedisRevocationList(client, keyPrefix), logger)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}

	if cfg.EnforceEligibility {
		if accounts == nil {
			return nil, fmt.Errorf("eligibility enforcement requires an account resolver")
		}
		backend = NewEligibilityBackend(backend, accounts)
	}

	logger.Info("session backend configured",
		zap.String("backend", backend.Name()),
		zap.Bool("enforce_eligibility", cfg.EnforceEligibility))

	return backend, nil
}
