package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/internal/observability"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/middleware"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services/billing"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/utils"
	"go.uber.org/zap"
)

const (
	maxWebhookBytes = 64 << 10

	// StripeSignatureHeader carries the webhook HMAC
	StripeSignatureHeader = "Stripe-Signature"
)

// BillingService is implemented by *billing.Service
type BillingService interface {
	StartCheckout(ctx context.Context, p *models.Principal, plan models.PlanType) (string, error)
	CurrentSubscription(ctx context.Context, p *models.Principal) (*billing.SubscriptionView, error)
	Cancel(ctx context.Context, p *models.Principal) error
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

// CheckoutRequest is the body of POST /api/billing/checkout
type CheckoutRequest struct {
	Plan string `json:"plan" validate:"required,oneof=starter pro"`
}

// CheckoutResponse points the browser at Stripe Checkout
type CheckoutResponse struct {
	URL string `json:"url"`
}

// BillingHandler handles subscription endpoints and Stripe webhooks
type BillingHandler struct {
	billing BillingService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(billingService BillingService, metrics *observability.Metrics, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleCheckout handles POST /api/billing/checkout
func (h *BillingHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.WriteValidationError(w, err, h.logger)
		return
	}

	url, err := h.billing.StartCheckout(r.Context(), p, models.PlanType(req.Plan))
	if err != nil {
		utils.WriteServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, CheckoutResponse{URL: url})
}

// HandleSubscription handles GET /api/billing/subscription
func (h *BillingHandler) HandleSubscription(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	view, err := h.billing.CurrentSubscription(r.Context(), p)
	if err != nil {
		utils.WriteServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"subscription": view})
}

// HandleCancel handles POST /api/billing/cancel
func (h *BillingHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	if err := h.billing.Cancel(r.Context(), p); err != nil {
		utils.WriteServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Assinatura cancelada"})
}

// HandleStripeWebhook handles POST /api/webhooks/stripe
func (h *BillingHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.metrics.RecordWebhook("unknown", "rejected")
		_ = utils.WriteBadRequest(w, "Invalid payload", nil)
		return
	}

	eventType := billing.EventType(payload)

	if err := h.billing.HandleWebhook(r.Context(), payload, r.Header.Get(StripeSignatureHeader)); err != nil {
		outcome := "failed"
		if services.IsValidationError(err) {
			outcome = "rejected"
		}
		h.metrics.RecordWebhook(eventType, outcome)
		utils.WriteServiceError(w, err, h.logger)
		return
	}

	h.metrics.RecordWebhook(eventType, "applied")
	_ = utils.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
