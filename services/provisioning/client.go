package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/config"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"go.uber.org/zap"
)

const apiKeyHeader = "X-N8N-API-KEY"

// ProvisionRequest is the body sent to the n8n webhook
type ProvisionRequest struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	PlanType string `json:"planType"`
}

// Client triggers the n8n workflow that sets up a new account's workspace
type Client struct {
	webhookURL string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new n8n client
func NewClient(cfg config.ProvisioningConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		webhookURL: cfg.WebhookURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether a webhook URL is configured
func (c *Client) Enabled() bool {
	return c.webhookURL != ""
}

// ProvisionUser posts the account to the provisioning workflow. It does nothing when disabled.
func (c *Client) ProvisionUser(ctx context.Context, user *models.User) error {
	if !c.Enabled() {
		c.logger.Debug("provisioning disabled, skipping", zap.String("user_id", user.ID.String()))
		return nil
	}

	body, err := json.Marshal(ProvisionRequest{
		UserID:   user.ID.String(),
		Email:    user.Email,
		Name:     user.Name,
		PlanType: string(user.PlanType),
	})
	if err != nil {
		return fmt.Errorf("encode provisioning request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create provisioning request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provisioning request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("provisioning failed: status %d, body: %s", resp.StatusCode, string(data))
	}

	c.logger.Info("user provisioned", zap.String("user_id", user.ID.String()))
	return nil
}
