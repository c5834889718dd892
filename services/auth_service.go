package services

import (
	"context"
	"errors"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/repositories"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Provisioner sets up downstream resources for a newly registered account
type Provisioner interface {
	ProvisionUser(ctx context.Context, user *models.User) error
}

// RegisterInput is the data needed to open an account
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthService verifies passwords and opens accounts
type AuthService struct {
	users       repositories.UserRepository
	txManager   repositories.TransactionManager
	provisioner Provisioner
	hashCost    int
	logger      *zap.Logger
}

// NewAuthService creates a new auth service. provisioner may be nil.
func NewAuthService(
	users repositories.UserRepository,
	txManager repositories.TransactionManager,
	provisioner Provisioner,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		txManager:   txManager,
		provisioner: provisioner,
		hashCost:    bcrypt.DefaultCost,
		logger:      logger,
	}
}

// Authenticate checks an email and password pair.
// Unknown email, wrong password and deactivated account all return ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("failed to load user for login", zap.Error(err))
		return nil, ErrAccountStoreFailure.Wrap(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Info("login attempt on inactive account", zap.String("user_id", user.ID.String()))
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Register creates an active free-plan account and provisions it downstream.
// Provisioning failures are logged and do not fail the registration.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if len(input.Password) < minPasswordLength {
		return nil, ErrInvalidInput.WithDetail("password", "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return nil, WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(input.Email, input.Name, string(hash))

	if err := s.createAccount(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()))

	if s.provisioner != nil {
		if err := s.provisioner.ProvisionUser(ctx, user); err != nil {
			s.logger.Warn("user provisioning failed",
				zap.String("user_id", user.ID.String()),
				zap.Error(err),
			)
		}
	}

	return user, nil
}

// createAccount runs the duplicate check and the insert in one transaction.
// The unique index on email still decides between concurrent registrations.
func (s *AuthService) createAccount(ctx context.Context, user *models.User) (err error) {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return ErrAccountStoreFailure.Wrap(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("registration rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
			}
		}
	}()

	users := s.users.WithTx(tx)

	if _, err := users.GetByEmail(ctx, user.Email); err == nil {
		return ErrDuplicateEmail
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return ErrAccountStoreFailure.Wrap(err)
	}

	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return ErrDuplicateEmail
		}
		return ErrAccountStoreFailure.Wrap(err)
	}

	if err := tx.Commit(); err != nil {
		return ErrAccountStoreFailure.Wrap(err)
	}
	return nil
}
