package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/config"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// CheckoutParams describes a subscription checkout
type CheckoutParams struct {
	CustomerID        string
	PriceID           string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Plan              string
}

// Client calls the Stripe API through stripe-go
type Client struct {
	api *client.API
}

// NewClient creates a Stripe client. BaseURL overrides the API host, which
// tests and local mocks use.
func NewClient(cfg config.BillingConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := int64(cfg.MaxRetries)
	if retries < 0 {
		retries = 0
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		LeveledLogger:     logger.Named("stripe").WithOptions(zap.IncreaseLevel(zap.WarnLevel)).Sugar(),
		MaxNetworkRetries: stripe.Int64(retries),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}

	return &Client{api: client.New(cfg.SecretKey, stripe.NewBackendsWithConfig(backendCfg))}
}

// CreateCustomer creates a customer tagged with the account id
func (c *Client) CreateCustomer(ctx context.Context, email, name, userID string) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata("userId", userID)

	return c.api.Customers.New(params)
}

// CreateCheckoutSession starts a subscription checkout
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(p.CustomerID),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(p.ClientReferenceID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"plan": p.Plan},
		},
	}
	params.Context = ctx
	params.AddMetadata("plan", p.Plan)

	return c.api.CheckoutSessions.New(params)
}

// GetSubscription retrieves a subscription
func (c *Client) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return c.api.Subscriptions.Get(id, params)
}

// CancelSubscription cancels a subscription immediately
func (c *Client) CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	return c.api.Subscriptions.Cancel(id, params)
}
