package principal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/session"
	"go.uber.org/zap"
)

// SessionStore is the provider-managed session storage
type SessionStore interface {
	Create(ctx context.Context, sess *session.Session, ttl time.Duration) (string, error)
	Get(ctx context.Context, credential string) (*session.Session, error)
	Delete(ctx context.Context, credential string) error
}

// SessionBackend resolves opaque credentials through a SessionStore
type SessionBackend struct {
	store  SessionStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionBackend creates a backend issuing sessions that live for ttl
func NewSessionBackend(store SessionStore, ttl time.Duration, logger *zap.Logger) *SessionBackend {
	return &SessionBackend{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Name identifies the backend in logs and metrics
func (b *SessionBackend) Name() string {
	return "provider"
}

// Issue opens a session for user
func (b *SessionBackend) Issue(ctx context.Context, user *models.User) (*Credential, error) {
	sess := &session.Session{
		UserID:     user.ID.String(),
		Email:      user.Email,
		Name:       user.Name,
		PlanType:   string(user.PlanType),
		PlanStatus: string(user.PlanStatus),
	}

	value, err := b.store.Create(ctx, sess, b.ttl)
	if err != nil {
		return nil, services.ErrProviderUnavailable.Wrap(err)
	}

	return &Credential{Value: value, ExpiresAt: sess.ExpiresAt}, nil
}

// Resolve looks the credential up in the store
func (b *SessionBackend) Resolve(ctx context.Context, credential string) (*models.Principal, error) {
	if credential == "" {
		return nil, services.ErrAnonymousSession
	}

	sess, err := b.store.Get(ctx, credential)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, services.ErrVerificationFailed.Wrap(err)
		}
		return nil, services.ErrProviderUnavailable.Wrap(err)
	}

	id, err := uuid.Parse(sess.UserID)
	if err != nil {
		b.logger.Warn("session with invalid user id", zap.Error(err))
		return nil, services.ErrVerificationFailed.Wrap(err)
	}

	return &models.Principal{
		ID:         id,
		Email:      sess.Email,
		Name:       sess.Name,
		PlanType:   models.PlanType(sess.PlanType),
		PlanStatus: models.PlanStatus(sess.PlanStatus),
		Active:     true,
		CreatedAt:  sess.CreatedAt,
	}, nil
}

// Invalidate deletes the session. Unknown credentials are not an error.
func (b *SessionBackend) Invalidate(ctx context.Context, credential string) error {
	if err := b.store.Delete(ctx, credential); err != nil {
		return services.ErrProviderUnavailable.Wrap(err)
	}
	return nil
}
