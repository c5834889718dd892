package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/repositories"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

const userColumns = `id, email, name, password_hash, plan_type, plan_status, is_active,
		stripe_customer_id, stripe_subscription_id, created_at, updated_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	tx     *Tx
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

func (r *UserRepository) executor() Executor {
	if r.tx != nil {
		return r.tx.tx
	}
	return r.db
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.executor().ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.PlanType,
		user.PlanStatus,
		user.IsActive,
		user.StripeCustomerID,
		user.StripeSubscriptionID,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %s", repositories.ErrDuplicate, user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id, "id "+id.String())
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, models.NormalizeEmail(email), "email")
}

// GetByStripeCustomerID retrieves the user owning a Stripe customer
func (r *UserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`
	return r.getOne(ctx, query, customerID, "stripe customer "+customerID)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}, what string) (*models.User, error) {
	user := &models.User{}
	var customerID, subscriptionID sql.NullString

	err := r.executor().QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.PlanType,
		&user.PlanStatus,
		&user.IsActive,
		&customerID,
		&subscriptionID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", repositories.ErrNotFound, what)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if customerID.Valid {
		user.StripeCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		user.StripeSubscriptionID = &subscriptionID.String
	}
	return user, nil
}

// SetActive activates or deactivates an account
func (r *UserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`

	result, err := r.executor().ExecContext(ctx, query, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if err := expectOneRow(result, id); err != nil {
		return err
	}

	r.logger.Info("user activation changed", zap.String("id", id.String()), zap.Bool("active", active))
	return nil
}

// UpdateBilling applies subscription changes to the account
func (r *UserRepository) UpdateBilling(ctx context.Context, id uuid.UUID, update repositories.BillingUpdate) error {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.StripeCustomerID != nil {
		add("stripe_customer_id", *update.StripeCustomerID)
	}
	if update.StripeSubscriptionID != nil {
		add("stripe_subscription_id", *update.StripeSubscriptionID)
	}
	if update.PlanType != nil {
		add("plan_type", *update.PlanType)
	}
	if update.PlanStatus != nil {
		add("plan_status", *update.PlanStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	result, err := r.executor().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user billing: %w", err)
	}
	if err := expectOneRow(result, id); err != nil {
		return err
	}

	r.logger.Debug("user billing updated", zap.String("id", id.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *UserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	bound := &UserRepository{db: r.db, logger: r.logger}
	if pgTx, ok := tx.(*Tx); ok {
		bound.tx = pgTx
	}
	return bound
}

func expectOneRow(result sql.Result, id uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user id %s", repositories.ErrNotFound, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
