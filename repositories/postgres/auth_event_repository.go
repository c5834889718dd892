package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/repositories"
	"go.uber.org/zap"
)

// AuthEventRepository implements the repositories.AuthEventRepository interface
type AuthEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuthEventRepository creates a new auth event repository
func NewAuthEventRepository(db *DB, logger *zap.Logger) repositories.AuthEventRepository {
	return &AuthEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new auth event
func (r *AuthEventRepository) Insert(ctx context.Context, event *models.AuthEvent) error {
	query := `
		INSERT INTO auth_events (
			id, user_id, email, action, details, ip_address, user_agent, request_id, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var details interface{}
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.Email,
		event.Action,
		details,
		event.IPAddress,
		event.UserAgent,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}

	r.logger.Debug("auth event inserted", zap.String("id", event.ID.String()), zap.String("action", string(event.Action)))
	return nil
}

// GetByUserID retrieves auth events for a user with pagination
func (r *AuthEventRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuthEvent, error) {
	query := `
		SELECT id, user_id, email, action, details, ip_address, user_agent, request_id, timestamp
		FROM auth_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query auth events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuthEvent
	for rows.Next() {
		event := &models.AuthEvent{}
		var uid uuid.NullUUID
		var details []byte
		if err := rows.Scan(
			&event.ID,
			&uid,
			&event.Email,
			&event.Action,
			&details,
			&event.IPAddress,
			&event.UserAgent,
			&event.RequestID,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		if uid.Valid {
			id := uid.UUID
			event.UserID = &id
		}
		event.Details = details
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate auth events: %w", err)
	}

	return events, nil
}
