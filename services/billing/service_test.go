package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/config"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/repositories"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

type MockStripe struct {
	mock.Mock
}

func (m *MockStripe) CreateCustomer(ctx context.Context, email, name, userID string) (*stripe.Customer, error) {
	args := m.Called(ctx, email, name, userID)
	if c := args.Get(0); c != nil {
		return c.(*stripe.Customer), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStripe) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*stripe.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if s := args.Get(0); s != nil {
		return s.(*stripe.CheckoutSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStripe) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*stripe.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStripe) CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*stripe.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	args := m.Called(ctx, customerID)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

func (m *MockUserRepository) UpdateBilling(ctx context.Context, id uuid.UUID, update repositories.BillingUpdate) error {
	return m.Called(ctx, id, update).Error(0)
}

func (m *MockUserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return m
}

type recordingAuditor struct {
	userIDs  []uuid.UUID
	statuses []models.PlanStatus
}

func (r *recordingAuditor) LogSubscriptionChanged(userID uuid.UUID, eventType string, plan models.PlanType, status models.PlanStatus) error {
	r.userIDs = append(r.userIDs, userID)
	r.statuses = append(r.statuses, status)
	return nil
}

func testBillingConfig() config.BillingConfig {
	return config.BillingConfig{
		SecretKey:     "sk_test",
		WebhookSecret: testWebhookSecret,
		PriceIDs:      map[string]string{"starter": "price_starter", "pro": "price_pro"},
		SuccessURL:    "https://app.example.com/dashboard",
		CancelURL:     "https://app.example.com/pricing",
	}
}

func newTestService(stripeAPI *MockStripe, users *MockUserRepository, auditor SubscriptionAuditor) *Service {
	return NewService(stripeAPI, users, auditor, testBillingConfig(), zap.NewNop())
}

func strPtr(s string) *string { return &s }

func TestService_StartCheckout_CreatesCustomer(t *testing.T) {
	ctx := context.Background()
	stripeAPI := new(MockStripe)
	users := new(MockUserRepository)
	user := models.NewUser("ana@example.com", "Ana", "hash")

	users.On("GetByID", ctx, user.ID).Return(user, nil)
	stripeAPI.On("CreateCustomer", ctx, "ana@example.com", "Ana", user.ID.String()).Return(&stripe.Customer{ID: "cus_1"}, nil)
	users.On("UpdateBilling", ctx, user.ID, repositories.BillingUpdate{StripeCustomerID: strPtr("cus_1")}).Return(nil)
	stripeAPI.On("CreateCheckoutSession", ctx, mock.MatchedBy(func(p CheckoutParams) bool {
		return p.CustomerID == "cus_1" && p.PriceID == "price_pro" && p.ClientReferenceID == user.ID.String()
	})).Return(&stripe.CheckoutSession{URL: "https://checkout.stripe.com/c/1"}, nil)

	url, err := newTestService(stripeAPI, users, nil).StartCheckout(ctx, models.NewPrincipal(user), models.PlanPro)

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/1", url)
	stripeAPI.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestService_StartCheckout_ExistingCustomer(t *testing.T) {
	ctx := context.Background()
	stripeAPI := new(MockStripe)
	users := new(MockUserRepository)
	user := models.NewUser("ana@example.com", "Ana", "hash")
	user.StripeCustomerID = strPtr("cus_existing")

	users.On("GetByID", ctx, user.ID).Return(user, nil)
	stripeAPI.On("CreateCheckoutSession", ctx, mock.Anything).Return(&stripe.CheckoutSession{URL: "https://checkout"}, nil)

	_, err := newTestService(stripeAPI, users, nil).StartCheckout(ctx, models.NewPrincipal(user), models.PlanStarter)

	require.NoError(t, err)
	stripeAPI.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_StartCheckout_InvalidPlan(t *testing.T) {
	user := models.NewUser("ana@example.com", "Ana", "hash")
	svc := newTestService(new(MockStripe), new(MockUserRepository), nil)

	for _, plan := range []models.PlanType{models.PlanFree, "enterprise"} {
		_, err := svc.StartCheckout(context.Background(), models.NewPrincipal(user), plan)
		assert.ErrorIs(t, err, services.ErrInvalidPlan)
	}
}

func TestService_StartCheckout_StripeDown(t *testing.T) {
	ctx := context.Background()
	stripeAPI := new(MockStripe)
	users := new(MockUserRepository)
	user := models.NewUser("ana@example.com", "Ana", "hash")

	users.On("GetByID", ctx, user.ID).Return(user, nil)
	stripeAPI.On("CreateCustomer", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := newTestService(stripeAPI, users, nil).StartCheckout(ctx, models.NewPrincipal(user), models.PlanPro)

	assert.True(t, services.IsExternalError(err))
}

func TestService_CurrentSubscription(t *testing.T) {
	ctx := context.Background()
	stripeAPI := new(MockStripe)
	users := new(MockUserRepository)
	user := models.NewUser("ana@example.com", "Ana", "hash")
	user.PlanType = models.PlanPro
	user.StripeSubscriptionID = strPtr("sub_1")

	users.On("GetByID", ctx, user.ID).Return(user, nil)
	stripeAPI.On("GetSubscription", ctx, "sub_1").Return(&stripe.Subscription{
		ID:                "sub_1",
		Status:            stripe.SubscriptionStatusPastDue,
		CancelAtPeriodEnd: true,
		CurrentPeriodEnd:  1767225600,
	}, nil)

	view, err := newTestService(stripeAPI, users, nil).CurrentSubscription(ctx, models.NewPrincipal(user))

	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, view.PlanType)
	assert.Equal(t, models.PlanStatusPastDue, view.PlanStatus)
	assert.True(t, view.CancelAtPeriodEnd)
	require.NotNil(t, view.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), *view.CurrentPeriodEnd)
}

func TestService_CurrentSubscription_FreePlan(t *testing.T) {
	ctx := context.Background()
	stripeAPI := new(MockStripe)
	users := new(MockUserRepository)
	user := models.NewUser("ana@example.com", "Ana", "hash")

	users.On("GetByID", ctx, user.ID).Return(user, nil)

	view, err := newTestService(stripeAPI, users, nil).CurrentSubscription(ctx, models.NewPrincipal(user))

	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, view.PlanType)
	assert.Empty(t, view.SubscriptionID)
	stripeAPI.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
}

func TestService_CurrentSubscription_MissingAccount(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	id := uuid.New()
	users.On("GetByID", ctx, id).Return(nil, fmt.Errorf("%w: user", repositories.ErrNotFound))

	_, err := newTestService(new(MockStripe), users, nil).CurrentSubscription(ctx, &models.Principal{ID: id})

	assert.ErrorIs(t, err, services.ErrAccountIneligible)
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()
	stripeAPI := new(MockStripe)
	users := new(MockUserRepository)
	auditor := &recordingAuditor{}
	user := models.NewUser("ana@example.com", "Ana", "hash")
	user.StripeSubscriptionID = strPtr("sub_1")

	users.On("GetByID", ctx, user.ID).Return(user, nil)
	stripeAPI.On("CancelSubscription", ctx, "sub_1").Return(&stripe.Subscription{ID: "sub_1", Status: stripe.SubscriptionStatusCanceled}, nil)
	users.On("UpdateBilling", ctx, user.ID, mock.MatchedBy(func(u repositories.BillingUpdate) bool {
		return *u.PlanType == models.PlanFree && *u.PlanStatus == models.PlanStatusCanceled
	})).Return(nil)

	err := newTestService(stripeAPI, users, auditor).Cancel(ctx, models.NewPrincipal(user))

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{user.ID}, auditor.userIDs)
	users.AssertExpectations(t)
}

func TestService_Cancel_NoSubscription(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	user := models.NewUser("ana@example.com", "Ana", "hash")
	users.On("GetByID", ctx, user.ID).Return(user, nil)

	err := newTestService(new(MockStripe), users, nil).Cancel(ctx, models.NewPrincipal(user))

	assert.ErrorIs(t, err, services.ErrNoSubscription)
}

func TestService_HandleWebhook_CheckoutCompleted(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	auditor := &recordingAuditor{}
	userID := uuid.New()
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{
		"id":"cs_1","customer":"cus_1","subscription":"sub_1","client_reference_id":%q,"metadata":{"plan":"pro"}}}}`, userID))

	users.On("UpdateBilling", ctx, userID, mock.MatchedBy(func(u repositories.BillingUpdate) bool {
		return *u.StripeCustomerID == "cus_1" &&
			*u.StripeSubscriptionID == "sub_1" &&
			*u.PlanType == models.PlanPro &&
			*u.PlanStatus == models.PlanStatusActive
	})).Return(nil)

	svc := newTestService(new(MockStripe), users, auditor)
	err := svc.HandleWebhook(ctx, payload, signedHeader(payload, testWebhookSecret, time.Now()))

	require.NoError(t, err)
	users.AssertExpectations(t)
	assert.Equal(t, []models.PlanStatus{models.PlanStatusActive}, auditor.statuses)
}

func TestService_HandleWebhook_SubscriptionUpdated(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	user := models.NewUser("ana@example.com", "Ana", "hash")
	payload := []byte(`{"id":"evt_2","type":"customer.subscription.updated","data":{"object":{
		"id":"sub_2","customer":"cus_1","status":"past_due","items":{"data":[{"price":{"id":"price_starter"}}]}}}}`)

	users.On("GetByStripeCustomerID", ctx, "cus_1").Return(user, nil)
	users.On("UpdateBilling", ctx, user.ID, mock.MatchedBy(func(u repositories.BillingUpdate) bool {
		return *u.StripeSubscriptionID == "sub_2" &&
			*u.PlanType == models.PlanStarter &&
			*u.PlanStatus == models.PlanStatusPastDue
	})).Return(nil)

	svc := newTestService(new(MockStripe), users, nil)
	err := svc.HandleWebhook(ctx, payload, signedHeader(payload, testWebhookSecret, time.Now()))

	require.NoError(t, err)
	users.AssertExpectations(t)
}

func TestService_HandleWebhook_SubscriptionDeleted(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	user := models.NewUser("ana@example.com", "Ana", "hash")
	payload := []byte(`{"id":"evt_3","type":"customer.subscription.deleted","data":{"object":{"id":"sub_2","customer":"cus_1","status":"canceled"}}}`)

	users.On("GetByStripeCustomerID", ctx, "cus_1").Return(user, nil)
	users.On("UpdateBilling", ctx, user.ID, mock.MatchedBy(func(u repositories.BillingUpdate) bool {
		return *u.PlanType == models.PlanFree && *u.PlanStatus == models.PlanStatusCanceled
	})).Return(nil)

	svc := newTestService(new(MockStripe), users, nil)
	require.NoError(t, svc.HandleWebhook(ctx, payload, signedHeader(payload, testWebhookSecret, time.Now())))
	users.AssertExpectations(t)
}

func TestService_HandleWebhook_UnknownCustomerAcknowledged(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	payload := []byte(`{"id":"evt_4","type":"customer.subscription.deleted","data":{"object":{"id":"sub_9","customer":"cus_9"}}}`)

	users.On("GetByStripeCustomerID", ctx, "cus_9").Return(nil, repositories.ErrNotFound)

	svc := newTestService(new(MockStripe), users, nil)
	assert.NoError(t, svc.HandleWebhook(ctx, payload, signedHeader(payload, testWebhookSecret, time.Now())))
	users.AssertNotCalled(t, "UpdateBilling", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_HandleWebhook_IgnoredType(t *testing.T) {
	payload := []byte(`{"id":"evt_5","type":"invoice.paid","data":{"object":{}}}`)
	svc := newTestService(new(MockStripe), new(MockUserRepository), nil)

	assert.NoError(t, svc.HandleWebhook(context.Background(), payload, signedHeader(payload, testWebhookSecret, time.Now())))
}

func TestService_HandleWebhook_BadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_6","type":"customer.subscription.deleted"}`)
	svc := newTestService(new(MockStripe), new(MockUserRepository), nil)

	err := svc.HandleWebhook(context.Background(), payload, signedHeader(payload, "whsec_wrong", time.Now()))

	assert.ErrorIs(t, err, services.ErrInvalidSignature)
	assert.True(t, services.IsValidationError(err))
}

func TestService_HandleWebhook_NoSecretConfigured(t *testing.T) {
	cfg := testBillingConfig()
	cfg.WebhookSecret = ""
	svc := NewService(new(MockStripe), new(MockUserRepository), nil, cfg, zap.NewNop())

	err := svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=abc")
	assert.ErrorIs(t, err, services.ErrBillingNotEnabled)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, models.PlanStatusActive, mapStatus("active"))
	assert.Equal(t, models.PlanStatusTrialing, mapStatus("trialing"))
	assert.Equal(t, models.PlanStatusPastDue, mapStatus("unpaid"))
	assert.Equal(t, models.PlanStatusCanceled, mapStatus("incomplete_expired"))
	assert.Equal(t, models.PlanStatusInactive, mapStatus("incomplete"))
}

func TestService_HandleWebhook_SignedGarbage(t *testing.T) {
	svc := newTestService(new(MockStripe), new(MockUserRepository), nil)

	for _, payload := range [][]byte{[]byte(`not json`), []byte(`{"id":"evt_7"}`)} {
		err := svc.HandleWebhook(context.Background(), payload, signedHeader(payload, testWebhookSecret, time.Now()))
		assert.ErrorIs(t, err, services.ErrInvalidInput)
		assert.Equal(t, "invalid input", services.PublicMessage(err))
	}
}

func TestService_HandleWebhook_ExpandedCheckoutObjects(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	userID := uuid.New()
	payload := []byte(fmt.Sprintf(`{"id":"evt_8","type":"checkout.session.completed","data":{"object":{
		"id":"cs_2","customer":{"id":"cus_2","object":"customer"},"subscription":{"id":"sub_2","object":"subscription"},
		"client_reference_id":%q,"metadata":{"plan":"starter"}}}}`, userID))

	users.On("UpdateBilling", ctx, userID, mock.MatchedBy(func(u repositories.BillingUpdate) bool {
		return *u.StripeCustomerID == "cus_2" &&
			*u.StripeSubscriptionID == "sub_2" &&
			*u.PlanType == models.PlanStarter
	})).Return(nil)

	svc := newTestService(new(MockStripe), users, nil)
	require.NoError(t, svc.HandleWebhook(ctx, payload, signedHeader(payload, testWebhookSecret, time.Now())))
	users.AssertExpectations(t)
}

func TestService_HandleWebhook_SubscriptionWithoutCustomer(t *testing.T) {
	users := new(MockUserRepository)
	payload := []byte(`{"id":"evt_9","type":"customer.subscription.updated","data":{"object":{"id":"sub_3","status":"active"}}}`)

	svc := newTestService(new(MockStripe), users, nil)
	assert.NoError(t, svc.HandleWebhook(context.Background(), payload, signedHeader(payload, testWebhookSecret, time.Now())))
	users.AssertNotCalled(t, "GetByStripeCustomerID", mock.Anything, mock.Anything)
}
