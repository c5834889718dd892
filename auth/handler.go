// Package auth serves the session endpoints: login, register, logout and
// identity introspection.
package auth

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/config"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/internal/observability"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/middleware"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/principal"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services/audit"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services/ratelimit"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/utils"
	"go.uber.org/zap"
)

// LogoutMessage is returned by every logout, whatever happened to the credential.
const LogoutMessage = "Logout realizado com sucesso"

// Authenticator checks passwords and creates accounts
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	Register(ctx context.Context, input services.RegisterInput) (*models.User, error)
}

// AuditLogger records session events. *audit.AuditService implements it.
type AuditLogger interface {
	LogLogin(user *models.User, meta audit.RequestMeta) error
	LogLoginFailed(email, reason string, meta audit.RequestMeta) error
	LogRegistration(user *models.User, meta audit.RequestMeta) error
	LogLogout(p *models.Principal, meta audit.RequestMeta) error
	LogInvalidationFailure(backend string, cause error, meta audit.RequestMeta) error
}

// LoginLimiter throttles repeated login attempts. *ratelimit.RateLimitService implements it.
type LoginLimiter interface {
	CheckLimit(ctx context.Context, key string) (*ratelimit.Decision, error)
	Reset(ctx context.Context, key string) error
}

// Handler handles the session lifecycle endpoints
type Handler struct {
	cfg      *config.Config
	authn    Authenticator
	backend  principal.Backend
	accounts principal.AccountResolver
	limiter  LoginLimiter
	audit    AuditLogger
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewHandler creates a new auth handler. limiter, auditLog and metrics may be nil.
func NewHandler(
	cfg *config.Config,
	authn Authenticator,
	backend principal.Backend,
	accounts principal.AccountResolver,
	limiter LoginLimiter,
	auditLog AuditLogger,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		authn:    authn,
		backend:  backend,
		accounts: accounts,
		limiter:  limiter,
		audit:    auditLog,
		metrics:  metrics,
		logger:   logger,
	}
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// LoginResponse is returned after a successful login
type LoginResponse struct {
	User       *models.Principal `json:"user"`
	RedirectTo string            `json:"redirectTo"`
}

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UserResponse wraps a principal for the register and me endpoints
type UserResponse struct {
	User *models.Principal `json:"user"`
}

// MessageResponse carries a human readable message
type MessageResponse struct {
	Message string `json:"message"`
}

// HandleLogin handles POST /api/auth/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meta := requestMeta(r)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.WriteValidationError(w, err, h.logger)
		return
	}

	limitKey := ratelimit.LoginKey(req.Email, meta.IPAddress)
	if !h.allowLogin(ctx, w, limitKey, meta) {
		return
	}

	user, err := h.authn.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if services.IsUnauthorizedError(err) {
			h.metrics.RecordLogin("invalid")
			h.logAudit(func() error { return h.audit.LogLoginFailed(req.Email, "invalid_credentials", meta) })
		} else {
			h.metrics.RecordLogin("error")
		}
		utils.WriteServiceError(w, err, h.logger.With(zap.String("request_id", meta.RequestID)))
		return
	}

	if !h.startSession(ctx, w, user, meta) {
		h.metrics.RecordLogin("error")
		_ = utils.WriteInternalServerError(w, "Failed to create session")
		return
	}

	h.metrics.RecordLogin("success")
	h.logAudit(func() error { return h.audit.LogLogin(user, meta) })
	if h.limiter != nil {
		if err := h.limiter.Reset(ctx, limitKey); err != nil {
			h.logger.Warn("failed to reset login attempts", zap.String("request_id", meta.RequestID), zap.Error(err))
		}
	}

	_ = utils.WriteJSON(w, http.StatusOK, LoginResponse{
		User:       models.NewPrincipal(user),
		RedirectTo: h.safeRedirect(req.RedirectTo),
	})
}

// HandleRegister handles POST /api/auth/register
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meta := requestMeta(r)

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.WriteValidationError(w, err, h.logger)
		return
	}

	user, err := h.authn.Register(ctx, services.RegisterInput{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		utils.WriteServiceError(w, err, h.logger.With(zap.String("request_id", meta.RequestID)))
		return
	}

	h.logAudit(func() error { return h.audit.LogRegistration(user, meta) })

	// The account exists either way; without a cookie the client logs in next.
	h.startSession(ctx, w, user, meta)

	_ = utils.WriteJSON(w, http.StatusCreated, UserResponse{User: models.NewPrincipal(user)})
}

// HandleLogout handles POST /api/auth/logout.
// The cookie is always cleared and the response is always 200.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meta := requestMeta(r)

	if credential := middleware.CredentialFromRequest(r, h.cfg.Session.CookieName); credential != "" {
		if err := h.backend.Invalidate(ctx, credential); err != nil {
			h.metrics.RecordInvalidationFailure(h.backend.Name())
			h.logger.Error("failed to invalidate session",
				zap.String("request_id", meta.RequestID),
				zap.String("backend", h.backend.Name()),
				zap.Error(err))
			h.logAudit(func() error { return h.audit.LogInvalidationFailure(h.backend.Name(), err, meta) })
		}
	}

	h.clearSessionCookie(w)
	h.logAudit(func() error {
		return h.audit.LogLogout(middleware.PrincipalFromContext(ctx), meta)
	})

	_ = utils.WriteJSON(w, http.StatusOK, MessageResponse{Message: LogoutMessage})
}

// HandleMe handles GET /api/auth/me. The account is reloaded on every call so a
// deactivated user stops seeing their profile even while the session lives.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	credential := middleware.CredentialFromRequest(r, h.cfg.Session.CookieName)
	if credential == "" {
		h.metrics.RecordIntrospection(http.StatusUnauthorized)
		_ = utils.WriteUnauthorized(w, services.PublicMessage(services.ErrAnonymousSession))
		return
	}

	p, err := h.backend.Resolve(ctx, credential)
	if err == nil {
		p, err = h.accounts.Resolve(ctx, p.ID.String())
	}
	if err != nil {
		status := utils.WriteServiceError(w, err, h.logger.With(zap.String("request_id", requestID)))
		h.metrics.RecordIntrospection(status)
		return
	}

	h.metrics.RecordIntrospection(http.StatusOK)
	_ = utils.WriteJSON(w, http.StatusOK, UserResponse{User: p})
}

// startSession issues a credential and sets the cookie. It reports whether a cookie was set.
func (h *Handler) startSession(ctx context.Context, w http.ResponseWriter, user *models.User, meta audit.RequestMeta) bool {
	cred, err := h.backend.Issue(ctx, user)
	if err != nil {
		h.logger.Error("failed to issue session",
			zap.String("request_id", meta.RequestID),
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Session.CookieName,
		Value:    cred.Value,
		Path:     "/",
		MaxAge:   int(h.cfg.Session.TTL.Seconds()),
		Expires:  cred.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

// safeRedirect only accepts local absolute paths.
func (h *Handler) safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return h.cfg.Session.LandingPath
	}
	return target
}

func (h *Handler) logAudit(record func() error) {
	if h.audit == nil {
		return
	}
	if err := record(); err != nil {
		h.logger.Warn("failed to queue auth event", zap.Error(err))
	}
}

// allowLogin counts the attempt and writes a 429 when the caller is over the limit.
// A limiter failure lets the attempt through.
func (h *Handler) allowLogin(ctx context.Context, w http.ResponseWriter, key string, meta audit.RequestMeta) bool {
	if h.limiter == nil {
		return true
	}

	decision, err := h.limiter.CheckLimit(ctx, key)
	if err != nil {
		h.logger.Warn("login rate limit unavailable", zap.String("request_id", meta.RequestID), zap.Error(err))
		return true
	}
	if decision.Allowed {
		return true
	}

	h.metrics.RecordLogin("throttled")
	retryAfter := int(decision.RetryAfter(time.Now()).Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	_ = utils.WriteTooManyRequests(w, "Too many login attempts, try again later", map[string]interface{}{
		"retryAfter": retryAfter,
	})
	return false
}

func requestMeta(r *http.Request) audit.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return audit.RequestMeta{
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
