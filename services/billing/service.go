package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/config"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/repositories"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

// StripeAPI is the subset of the Stripe API the service uses
type StripeAPI interface {
	CreateCustomer(ctx context.Context, email, name, userID string) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*stripe.CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

// SubscriptionAuditor records plan changes
type SubscriptionAuditor interface {
	LogSubscriptionChanged(userID uuid.UUID, eventType string, plan models.PlanType, status models.PlanStatus) error
}

// SubscriptionView is what the account owner sees about their plan
type SubscriptionView struct {
	PlanType          models.PlanType   `json:"planType"`
	PlanStatus        models.PlanStatus `json:"planStatus"`
	SubscriptionID    string            `json:"subscriptionId,omitempty"`
	CancelAtPeriodEnd bool              `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  *time.Time        `json:"currentPeriodEnd,omitempty"`
}

// Service links accounts to Stripe subscriptions
type Service struct {
	stripe  StripeAPI
	users   repositories.UserRepository
	auditor SubscriptionAuditor
	cfg     config.BillingConfig
	logger  *zap.Logger
}

// NewService creates a new billing service. auditor may be nil.
func NewService(stripe StripeAPI, users repositories.UserRepository, auditor SubscriptionAuditor, cfg config.BillingConfig, logger *zap.Logger) *Service {
	return &Service{
		stripe:  stripe,
		users:   users,
		auditor: auditor,
		cfg:     cfg,
		logger:  logger,
	}
}

// StartCheckout returns the URL of a Stripe Checkout page for plan.
// The Stripe customer is created on first use and stored on the account.
func (s *Service) StartCheckout(ctx context.Context, principal *models.Principal, plan models.PlanType) (string, error) {
	priceID, ok := s.cfg.PriceIDs[string(plan)]
	if !plan.IsPaid() || !ok || priceID == "" {
		return "", services.ErrInvalidPlan.WithDetail("plan", string(plan))
	}

	user, err := s.loadUser(ctx, principal.ID)
	if err != nil {
		return "", err
	}

	if !user.HasStripeCustomer() {
		customer, err := s.stripe.CreateCustomer(ctx, user.Email, user.Name, user.ID.String())
		if err != nil {
			return "", services.ErrBillingUnavailable.Wrap(err)
		}
		if err := s.users.UpdateBilling(ctx, user.ID, repositories.BillingUpdate{StripeCustomerID: &customer.ID}); err != nil {
			return "", services.ErrAccountStoreFailure.Wrap(err)
		}
		user.StripeCustomerID = &customer.ID
		s.logger.Info("stripe customer created", zap.String("user_id", user.ID.String()))
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID:        *user.StripeCustomerID,
		PriceID:           priceID,
		SuccessURL:        s.cfg.SuccessURL,
		CancelURL:         s.cfg.CancelURL,
		ClientReferenceID: user.ID.String(),
		Plan:              string(plan),
	})
	if err != nil {
		return "", services.ErrBillingUnavailable.Wrap(err)
	}

	return session.URL, nil
}

// CurrentSubscription returns the account's plan, refreshed from Stripe when a subscription exists
func (s *Service) CurrentSubscription(ctx context.Context, principal *models.Principal) (*SubscriptionView, error) {
	user, err := s.loadUser(ctx, principal.ID)
	if err != nil {
		return nil, err
	}

	view := &SubscriptionView{PlanType: user.PlanType, PlanStatus: user.PlanStatus}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID == "" {
		return view, nil
	}

	sub, err := s.stripe.GetSubscription(ctx, *user.StripeSubscriptionID)
	if err != nil {
		return nil, services.ErrBillingUnavailable.Wrap(err)
	}

	view.SubscriptionID = sub.ID
	view.PlanStatus = mapStatus(sub.Status)
	view.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		view.CurrentPeriodEnd = &end
	}
	return view, nil
}

// Cancel cancels the account's subscription and moves it back to the free plan
func (s *Service) Cancel(ctx context.Context, principal *models.Principal) error {
	user, err := s.loadUser(ctx, principal.ID)
	if err != nil {
		return err
	}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID == "" {
		return services.ErrNoSubscription
	}

	if _, err := s.stripe.CancelSubscription(ctx, *user.StripeSubscriptionID); err != nil {
		return services.ErrBillingUnavailable.Wrap(err)
	}

	return s.applyPlan(ctx, user.ID, "subscription.canceled", repositories.BillingUpdate{}, models.PlanFree, models.PlanStatusCanceled)
}

// HandleWebhook verifies and applies a Stripe event
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if s.cfg.WebhookSecret == "" {
		return services.ErrBillingNotEnabled
	}
	event, err := ConstructEvent(payload, signatureHeader, s.cfg.WebhookSecret)
	if err != nil {
		if IsSignatureError(err) {
			s.logger.Warn("stripe webhook rejected", zap.Error(err))
			return services.ErrInvalidSignature.Wrap(err)
		}
		return services.ErrInvalidInput.Wrap(err)
	}
	if event.Type == "" || event.Data == nil {
		return services.ErrInvalidInput.WithDetail("event", "missing type or data")
	}

	s.logger.Info("stripe webhook received", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return services.ErrInvalidInput.Wrap(err)
		}
		return s.onCheckoutCompleted(ctx, &session)
	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return services.ErrInvalidInput.Wrap(err)
		}
		return s.onSubscriptionChanged(ctx, event.Type, &sub)
	default:
		s.logger.Debug("stripe webhook ignored", zap.String("type", string(event.Type)))
		return nil
	}
}

func (s *Service) onCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		s.logger.Warn("checkout without account reference", zap.String("session_id", session.ID))
		return nil
	}

	plan := models.PlanType(session.Metadata["plan"])
	if !plan.IsPaid() {
		plan = models.PlanStarter
	}

	update := repositories.BillingUpdate{}
	if session.Customer != nil && session.Customer.ID != "" {
		update.StripeCustomerID = &session.Customer.ID
	}
	if session.Subscription != nil && session.Subscription.ID != "" {
		update.StripeSubscriptionID = &session.Subscription.ID
	}

	return s.applyPlan(ctx, userID, string(stripe.EventTypeCheckoutSessionCompleted), update, plan, models.PlanStatusActive)
}

func (s *Service) onSubscriptionChanged(ctx context.Context, eventType stripe.EventType, sub *stripe.Subscription) error {
	if sub.Customer == nil || sub.Customer.ID == "" {
		s.logger.Warn("subscription event without customer", zap.String("subscription_id", sub.ID))
		return nil
	}

	user, err := s.users.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Warn("subscription event for unknown customer", zap.String("subscription_id", sub.ID))
			return nil
		}
		return services.ErrAccountStoreFailure.Wrap(err)
	}

	if eventType == stripe.EventTypeCustomerSubscriptionDeleted {
		return s.applyPlan(ctx, user.ID, string(eventType), repositories.BillingUpdate{}, models.PlanFree, models.PlanStatusCanceled)
	}

	plan := s.planForSubscription(sub)
	if plan == "" {
		plan = user.PlanType
	}
	update := repositories.BillingUpdate{StripeSubscriptionID: &sub.ID}
	return s.applyPlan(ctx, user.ID, string(eventType), update, plan, mapStatus(sub.Status))
}

func (s *Service) applyPlan(ctx context.Context, userID uuid.UUID, eventType string, update repositories.BillingUpdate, plan models.PlanType, status models.PlanStatus) error {
	update.PlanType = &plan
	update.PlanStatus = &status

	if err := s.users.UpdateBilling(ctx, userID, update); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Warn("billing update for unknown account", zap.String("user_id", userID.String()))
			return nil
		}
		return services.ErrAccountStoreFailure.Wrap(err)
	}

	s.logger.Info("subscription applied",
		zap.String("user_id", userID.String()),
		zap.String("event", eventType),
		zap.String("plan", string(plan)),
		zap.String("status", string(status)))

	if s.auditor != nil {
		_ = s.auditor.LogSubscriptionChanged(userID, eventType, plan, status)
	}
	return nil
}

func (s *Service) planForSubscription(sub *stripe.Subscription) models.PlanType {
	priceID := subscriptionPriceID(sub)
	for plan, id := range s.cfg.PriceIDs {
		if id != "" && id == priceID {
			return models.PlanType(plan)
		}
	}
	if plan := models.PlanType(sub.Metadata["plan"]); plan.IsPaid() {
		return plan
	}
	return ""
}

func (s *Service) loadUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrAccountIneligible
		}
		return nil, services.ErrAccountStoreFailure.Wrap(err)
	}
	return user, nil
}

// subscriptionPriceID returns the price of the first subscription item
func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return ""
	}
	return sub.Items.Data[0].Price.ID
}

func mapStatus(status stripe.SubscriptionStatus) models.PlanStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return models.PlanStatusActive
	case stripe.SubscriptionStatusTrialing:
		return models.PlanStatusTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return models.PlanStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return models.PlanStatusCanceled
	default:
		return models.PlanStatusInactive
	}
}
