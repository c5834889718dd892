package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	return m, reg
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_Record(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDecision("protected", "redirect_login")
	m.RecordDecision("protected", "redirect_login")
	m.RecordResolveFailure("verification")
	m.RecordInvalidationFailure("token")
	m.RecordIntrospection(http.StatusNotFound)
	m.RecordLogin("invalid")
	m.RecordWebhook("customer.subscription.deleted", "applied")

	assert.Equal(t, 2.0, counterValue(t, m.GatewayDecisions, "protected", "redirect_login"))
	assert.Equal(t, 0.0, counterValue(t, m.GatewayDecisions, "public", "pass"))
	assert.Equal(t, 1.0, counterValue(t, m.ResolveFailures, "verification"))
	assert.Equal(t, 1.0, counterValue(t, m.InvalidationFailures, "token"))
	assert.Equal(t, 1.0, counterValue(t, m.Introspections, "404"))
	assert.Equal(t, 1.0, counterValue(t, m.LoginAttempts, "invalid"))
	assert.Equal(t, 1.0, counterValue(t, m.WebhookEvents, "customer.subscription.deleted", "applied"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordDecision("public", "pass")
		m.RecordResolveFailure("unavailable")
		m.RecordInvalidationFailure("provider")
		m.RecordIntrospection(http.StatusOK)
		m.RecordLogin("success")
		m.RecordWebhook("x", "ignored")
	})
}

func TestHandler(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordDecision("auth_only", "redirect_landing")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gateway_decisions_total{action="redirect_landing",class="auth_only"} 1`)
}
