package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
)

// Context key type to avoid collisions
type contextKey string

// PrincipalKey is the context key for the resolved session principal
const PrincipalKey contextKey = "principal"

// GetRequestIDFromContext returns the id set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// PrincipalFromContext returns the principal the gateway resolved, or nil for anonymous requests
func PrincipalFromContext(ctx context.Context) *models.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*models.Principal); ok {
			return p
		}
	}
	return nil
}

// WithPrincipal adds a principal to the context
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}
