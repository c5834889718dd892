package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/config"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/internal/observability"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services"
	"go.uber.org/zap"
)

// Action is what the gateway does with a request
type Action string

const (
	ActionPass            Action = "pass"
	ActionRedirectLogin   Action = "redirect_login"
	ActionRedirectLanding Action = "redirect_landing"

	// ActionRedirectCanonical is taken before classification for non-canonical paths
	ActionRedirectCanonical Action = "redirect_canonical"
)

// Decide applies the gateway decision table.
func Decide(authenticated bool, class RouteClass) Action {
	switch {
	case !authenticated && class == Protected:
		return ActionRedirectLogin
	case authenticated && class == AuthOnly:
		return ActionRedirectLanding
	default:
		return ActionPass
	}
}

// PrincipalResolver turns a credential into a principal.
// principal.Backend satisfies it.
type PrincipalResolver interface {
	Resolve(ctx context.Context, credential string) (*models.Principal, error)
}

// SessionGateway redirects requests whose session state does not match the
// route class and attaches the principal to the ones it lets through.
type SessionGateway struct {
	resolver    PrincipalResolver
	classifier  *Classifier
	cookieName  string
	loginPath   string
	landingPath string
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewSessionGateway creates a new SessionGateway
func NewSessionGateway(cfg config.SessionConfig, resolver PrincipalResolver, classifier *Classifier, metrics *observability.Metrics, logger *zap.Logger) *SessionGateway {
	return &SessionGateway{
		resolver:    resolver,
		classifier:  classifier,
		cookieName:  cfg.CookieName,
		loginPath:   cfg.LoginPath,
		landingPath: cfg.LandingPath,
		metrics:     metrics,
		logger:      logger,
	}
}

// Handler is the gateway middleware
func (g *SessionGateway) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsCanonical(r.URL.Path) {
			g.redirectCanonical(w, r)
			return
		}
		if IsExcluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		class := g.classifier.Classify(r.URL.Path)
		p := g.resolve(r)
		action := Decide(p != nil, class)
		g.metrics.RecordDecision(class.String(), string(action))

		switch action {
		case ActionRedirectLogin:
			target := g.loginPath + "?" + url.Values{"redirectTo": {r.URL.Path}}.Encode()
			http.Redirect(w, r, target, http.StatusFound)
			return
		case ActionRedirectLanding:
			http.Redirect(w, r, g.landingPath, http.StatusFound)
			return
		}

		if p != nil {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// redirectCanonical sends requests with dot segments or repeated slashes to the
// cleaned path, so the path that was classified is the path that gets served.
func (g *SessionGateway) redirectCanonical(w http.ResponseWriter, r *http.Request) {
	target := cleanPath(r.URL.Path)
	g.metrics.RecordDecision(g.classifier.Classify(target).String(), string(ActionRedirectCanonical))

	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusPermanentRedirect)
}

// resolve returns nil for every request that does not carry a usable credential.
func (g *SessionGateway) resolve(r *http.Request) *models.Principal {
	credential := CredentialFromRequest(r, g.cookieName)
	if credential == "" {
		return nil
	}

	p, err := g.resolver.Resolve(r.Context(), credential)
	if err != nil {
		reason := failureReason(err)
		g.metrics.RecordResolveFailure(reason)

		fields := []zap.Field{
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("reason", reason),
			zap.Error(err),
		}
		if reason == "unavailable" {
			g.logger.Warn("session resolution failed", fields...)
		} else {
			g.logger.Debug("session rejected", fields...)
		}
		return nil
	}
	return p
}

func failureReason(err error) string {
	switch {
	case services.IsUnauthorizedError(err):
		return "verification"
	case services.IsNotFoundError(err):
		return "ineligible"
	case services.IsUnavailableError(err):
		return "unavailable"
	default:
		return "error"
	}
}
