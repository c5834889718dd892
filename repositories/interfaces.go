package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
)

var (
	// ErrNotFound is wrapped by every lookup that matches no row
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is wrapped when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager opens account-store transactions
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction is an open transaction that repositories join through WithTx.
// Rollback after Commit is a no-op.
type Transaction interface {
	Commit() error
	Rollback() error
}

// BillingUpdate carries the subscription fields a billing event may change.
// Nil fields are left untouched.
type BillingUpdate struct {
	StripeCustomerID     *string
	StripeSubscriptionID *string
	PlanType             *models.PlanType
	PlanStatus           *models.PlanStatus
}

// UserRepository handles account data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by normalized email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByStripeCustomerID retrieves the user owning a billing customer
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)

	// SetActive activates or deactivates an account
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// UpdateBilling applies subscription changes
	UpdateBilling(ctx context.Context, id uuid.UUID, update BillingUpdate) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// AuthEventRepository handles the session audit trail
type AuthEventRepository interface {
	// Insert inserts a new auth event
	Insert(ctx context.Context, event *models.AuthEvent) error

	// GetByUserID retrieves events for a user, newest first
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuthEvent, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users      UserRepository
	AuthEvents AuthEventRepository
}
