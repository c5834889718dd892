package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/repositories"
	"go.uber.org/zap"
)

// AccountService decides whether a subject may still act as a principal.
type AccountService struct {
	users  repositories.UserRepository
	logger *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(users repositories.UserRepository, logger *zap.Logger) *AccountService {
	return &AccountService{
		users:  users,
		logger: logger,
	}
}

// Resolve loads the current account state for subjectID. The result is read
// from the store on every call.
func (s *AccountService) Resolve(ctx context.Context, subjectID string) (*models.Principal, error) {
	id, err := uuid.Parse(subjectID)
	if err != nil {
		return nil, ErrAccountIneligible
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrAccountIneligible
		}
		s.logger.Error("account lookup failed", zap.String("user_id", subjectID), zap.Error(err))
		return nil, ErrAccountStoreFailure.Wrap(err)
	}

	if !user.IsActive {
		s.logger.Debug("inactive account rejected", zap.String("user_id", subjectID))
		return nil, ErrAccountIneligible
	}

	return models.NewPrincipal(user), nil
}
