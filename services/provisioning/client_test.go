package provisioning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/config"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_ProvisionUser(t *testing.T) {
	user := models.NewUser("ana@example.com", "Ana", "hash")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret-key", r.Header.Get("X-N8N-API-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body ProvisionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, user.ID.String(), body.UserID)
		assert.Equal(t, "ana@example.com", body.Email)
		assert.Equal(t, "Ana", body.Name)
		assert.Equal(t, "free", body.PlanType)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(config.ProvisioningConfig{WebhookURL: server.URL, APIKey: "secret-key"}, zap.NewNop())
	assert.NoError(t, client.ProvisionUser(context.Background(), user))
}

func TestClient_ProvisionUser_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("workflow inactive"))
	}))
	defer server.Close()

	client := NewClient(config.ProvisioningConfig{WebhookURL: server.URL}, zap.NewNop())
	err := client.ProvisionUser(context.Background(), models.NewUser("ana@example.com", "Ana", "hash"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "workflow inactive")
}

func TestClient_ProvisionUser_Disabled(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := NewClient(config.ProvisioningConfig{}, zap.NewNop())

	assert.False(t, client.Enabled())
	assert.NoError(t, client.ProvisionUser(context.Background(), models.NewUser("ana@example.com", "Ana", "hash")))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClient_ProvisionUser_OmitsEmptyAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-N8n-Api-Key"]
		assert.False(t, present)
	}))
	defer server.Close()

	client := NewClient(config.ProvisioningConfig{WebhookURL: server.URL}, zap.NewNop())
	assert.NoError(t, client.ProvisionUser(context.Background(), models.NewUser("ana@example.com", "Ana", "hash")))
}
