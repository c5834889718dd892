package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanType is the subscription tier of an account
type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanStarter PlanType = "starter"
	PlanPro     PlanType = "pro"
)

// PlanStatus mirrors the billing provider's subscription state
type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "active"
	PlanStatusTrialing PlanStatus = "trialing"
	PlanStatusPastDue  PlanStatus = "past_due"
	PlanStatusCanceled PlanStatus = "canceled"
	PlanStatusInactive PlanStatus = "inactive"
)

// IsPaid reports whether the plan type requires a subscription.
func (p PlanType) IsPaid() bool {
	return p == PlanStarter || p == PlanPro
}

// User is the stored account record. Only the gateway's account resolver
// and the auth service read it; everything request-scoped uses Principal.
type User struct {
	ID                   uuid.UUID  `json:"id" db:"id"`
	Email                string     `json:"email" db:"email"`
	Name                 string     `json:"name" db:"name"`
	PasswordHash         string     `json:"-" db:"password_hash"`
	PlanType             PlanType   `json:"plan_type" db:"plan_type"`
	PlanStatus           PlanStatus `json:"plan_status" db:"plan_status"`
	IsActive             bool       `json:"is_active" db:"is_active"`
	StripeCustomerID     *string    `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID *string    `json:"-" db:"stripe_subscription_id"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates an active free-plan account. The email is normalized to lower case.
func NewUser(email, name, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		PlanType:     PlanFree,
		PlanStatus:   PlanStatusActive,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasStripeCustomer reports whether a billing customer was created for the account
func (u *User) HasStripeCustomer() bool {
	return u.StripeCustomerID != nil && *u.StripeCustomerID != ""
}
