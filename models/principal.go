package models

import (
	"time"

	"github.com/google/uuid"
)

// Principal is the request-scoped identity the gateway works with.
// It is never persisted and carries no secrets.
type Principal struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	PlanType   PlanType   `json:"planType"`
	PlanStatus PlanStatus `json:"planStatus"`
	Active     bool       `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NewPrincipal projects the allow-listed fields of a stored account.
func NewPrincipal(u *User) *Principal {
	if u == nil {
		return nil
	}
	return &Principal{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		PlanType:   u.PlanType,
		PlanStatus: u.PlanStatus,
		Active:     u.IsActive,
		CreatedAt:  u.CreatedAt,
	}
}
