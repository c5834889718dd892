package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// GatewayDecisions counts gateway outcomes by route class and action
	// (pass, redirect_login, redirect_landing).
	GatewayDecisions *prometheus.CounterVec

	// ResolveFailures counts credentials that were present but could not be
	// resolved, by reason (verification, unavailable, ineligible).
	ResolveFailures *prometheus.CounterVec

	// InvalidationFailures counts logout invalidations the backend rejected.
	InvalidationFailures *prometheus.CounterVec

	// Introspections counts /api/auth/me responses by status code.
	Introspections *prometheus.CounterVec

	// LoginAttempts counts logins by outcome (success, invalid, error).
	LoginAttempts *prometheus.CounterVec

	// WebhookEvents counts billing webhooks by event type and outcome.
	WebhookEvents *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Passing nil registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		GatewayDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_decisions_total",
				Help: "Session gateway decisions by route class and action.",
			},
			[]string{"class", "action"},
		),
		ResolveFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_resolve_failures_total",
				Help: "Session credentials that failed to resolve, by reason.",
			},
			[]string{"reason"},
		),
		InvalidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_invalidation_failures_total",
				Help: "Logout invalidations rejected by the session backend.",
			},
			[]string{"backend"},
		),
		Introspections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_introspection_total",
				Help: "Session introspection responses by HTTP status.",
			},
			[]string{"status"},
		),
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_attempts_total",
				Help: "Login attempts by outcome.",
			},
			[]string{"outcome"},
		),
		WebhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Billing webhook deliveries by event type and outcome.",
			},
			[]string{"type", "outcome"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.GatewayDecisions,
		m.ResolveFailures,
		m.InvalidationFailures,
		m.Introspections,
		m.LoginAttempts,
		m.WebhookEvents,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordDecision counts one gateway decision.
func (m *Metrics) RecordDecision(class, action string) {
	if m == nil {
		return
	}
	m.GatewayDecisions.WithLabelValues(class, action).Inc()
}

// RecordResolveFailure counts one credential that failed to resolve.
func (m *Metrics) RecordResolveFailure(reason string) {
	if m == nil {
		return
	}
	m.ResolveFailures.WithLabelValues(reason).Inc()
}

// RecordInvalidationFailure counts one failed logout invalidation.
func (m *Metrics) RecordInvalidationFailure(backend string) {
	if m == nil {
		return
	}
	m.InvalidationFailures.WithLabelValues(backend).Inc()
}

// RecordIntrospection counts one introspection response.
func (m *Metrics) RecordIntrospection(status int) {
	if m == nil {
		return
	}
	m.Introspections.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RecordLogin counts one login attempt.
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// RecordWebhook counts one billing webhook delivery.
func (m *Metrics) RecordWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// Handler exposes the collectors gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
