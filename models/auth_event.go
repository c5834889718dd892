package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuthAction represents the type of session event being audited
type AuthAction string

const (
	AuthActionLoginSucceeded      AuthAction = "login_succeeded"
	AuthActionLoginFailed         AuthAction = "login_failed"
	AuthActionRegistered          AuthAction = "registered"
	AuthActionLogout              AuthAction = "logout"
	AuthActionInvalidationFailed  AuthAction = "session_invalidation_failed"
	AuthActionSubscriptionChanged AuthAction = "subscription_changed"
)

// AuthEvent represents an entry in the session audit trail
type AuthEvent struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Email     string          `json:"email,omitempty" db:"email"`
	Action    AuthAction      `json:"action" db:"action"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress string          `json:"ip_address" db:"ip_address"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	RequestID string          `json:"request_id" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuthEvent model
func (AuthEvent) TableName() string {
	return "auth_events"
}

// NewAuthEvent creates a new AuthEvent instance
func NewAuthEvent(action AuthAction) *AuthEvent {
	return &AuthEvent{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// WithUser sets the user ID
func (e *AuthEvent) WithUser(userID uuid.UUID) *AuthEvent {
	e.UserID = &userID
	return e
}

// WithEmail records the email the event refers to
func (e *AuthEvent) WithEmail(email string) *AuthEvent {
	e.Email = email
	return e
}

// WithDetails sets the details
func (e *AuthEvent) WithDetails(details interface{}) *AuthEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

// WithRequest sets request metadata
func (e *AuthEvent) WithRequest(requestID, ipAddress, userAgent string) *AuthEvent {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}
