package principal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/token"
	"go.uber.org/zap"
)

// RevocationList remembers invalidated token ids
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenBackend issues self-signed JWTs. With a nil revocation list logout
// only clears the cookie and the token stays valid until it expires.
type TokenBackend struct {
	secret      []byte
	ttl         time.Duration
	revocations RevocationList
	now         func() time.Time
	logger      *zap.Logger
}

// NewTokenBackend creates a JWT backend
func NewTokenBackend(secret []byte, ttl time.Duration, revocations RevocationList, logger *zap.Logger) *TokenBackend {
	return &TokenBackend{
		secret:      secret,
		ttl:         ttl,
		revocations: revocations,
		now:         time.Now,
		logger:      logger,
	}
}

// Name identifies the backend in logs and metrics
func (b *TokenBackend) Name() string {
	return "token"
}

// Issue signs a token for user
func (b *TokenBackend) Issue(ctx context.Context, user *models.User) (*Credential, error) {
	issuedAt := b.now()
	expiresAt := issuedAt.Add(b.ttl).Truncate(time.Second)

	signed, err := token.Sign(token.Claims{
		SubjectID: user.ID.String(),
		Email:     user.Email,
		PlanTier:  string(user.PlanType),
	}, b.secret, issuedAt, expiresAt)
	if err != nil {
		return nil, services.WrapInternal("failed to sign session token", err)
	}

	return &Credential{Value: signed, ExpiresAt: expiresAt}, nil
}

// Resolve verifies the token and checks it was not revoked
func (b *TokenBackend) Resolve(ctx context.Context, credential string) (*models.Principal, error) {
	if credential == "" {
		return nil, services.ErrAnonymousSession
	}

	t, err := token.Parse(credential, b.secret, b.now())
	if err != nil {
		return nil, services.ErrVerificationFailed.Wrap(err)
	}

	if b.revocations != nil && t.ID != "" {
		revoked, err := b.revocations.IsRevoked(ctx, t.ID)
		if err != nil {
			return nil, services.ErrProviderUnavailable.Wrap(err)
		}
		if revoked {
			return nil, services.ErrVerificationFailed.Wrap(errors.New("token revoked"))
		}
	}

	id, err := uuid.Parse(t.SubjectID)
	if err != nil {
		return nil, services.ErrVerificationFailed.Wrap(err)
	}

	return &models.Principal{
		ID:       id,
		Email:    t.Email,
		PlanType: models.PlanType(t.PlanTier),
		Active:   true,
	}, nil
}

// Invalidate revokes the token for the rest of its lifetime.
// Expired tokens need no revocation.
func (b *TokenBackend) Invalidate(ctx context.Context, credential string) error {
	now := b.now()
	t, err := token.Parse(credential, b.secret, now)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil
		}
		return services.ErrVerificationFailed.Wrap(err)
	}

	if b.revocations == nil {
		b.logger.Debug("no revocation list, token stays valid until expiry")
		return nil
	}
	if t.ID == "" {
		return services.ErrVerificationFailed.Wrap(errors.New("token has no id"))
	}

	if err := b.revocations.Revoke(ctx, t.ID, t.ExpiresAt.Sub(now)); err != nil {
		return services.ErrProviderUnavailable.Wrap(err)
	}
	return nil
}
