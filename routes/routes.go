package routes

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/app"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/handlers"
	gatewaymw "github.com/projetosfelipeeduardo/whatszap-bot-sub001/middleware"
	"go.uber.org/zap"
)

// SetupRoutes configures all application routes and middleware.
// Every request except static assets passes the session gateway first.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	trusted, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		deps.Logger.Warn("ignoring trusted proxies", zap.Error(err))
		trusted = nil
	}

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(gatewaymw.TrustedRealIP(trusted))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handlers.StripeSignatureHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(deps.Gateway.Handler)

	health := handlers.NewHealthHandler(deps.Logger,
		handlers.DependencyCheck{Name: "database", Check: deps.DB.HealthCheck},
		handlers.DependencyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}},
	)

	r.Route("/api", func(r chi.Router) {
		r.Route("/public", func(r chi.Router) {
			r.Get("/ping", health.HandlePing)
			r.Get("/ready", health.HandleReadiness)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", handlers.AuthLoginHandler(deps))
			r.Post("/register", handlers.AuthRegisterHandler(deps))
			r.Post("/logout", handlers.AuthLogoutHandler(deps))
			r.Get("/me", handlers.AuthMeHandler(deps))
		})

		if deps.Billing != nil {
			billing := handlers.NewBillingHandler(deps.Billing, deps.Metrics, deps.Logger)

			r.Route("/billing", func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireAuth)
				r.Post("/checkout", billing.HandleCheckout)
				r.Get("/subscription", billing.HandleSubscription)
				r.Post("/cancel", billing.HandleCancel)
			})
			r.Post("/webhooks/stripe", billing.HandleStripeWebhook)
		}
	})

	if cfg.Frontend.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.Frontend.StaticDir)))
		r.Handle("/static/*", fs)
	}

	r.NotFound(notFoundHandler(cfg.Frontend.UpstreamURL, deps.Logger))

	return r
}

// notFoundHandler hands unmatched routes (the frontend's pages) to the
// upstream when one is configured, and answers JSON 404 otherwise.
func notFoundHandler(upstream string, logger *zap.Logger) http.HandlerFunc {
	if upstream != "" {
		target, err := url.Parse(upstream)
		if err == nil {
			proxy := httputil.NewSingleHostReverseProxy(target)
			proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
				logger.Error("frontend upstream failed",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				w.WriteHeader(http.StatusBadGateway)
			}
			logger.Info("proxying page requests", zap.String("upstream", target.Redacted()))
			return proxy.ServeHTTP
		}
		logger.Error("invalid frontend upstream, serving 404", zap.Error(err))
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	}
}
