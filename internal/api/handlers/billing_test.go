package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wayfarer/internal/types"
)

func newTestBillingHandler(checkout *mockCheckoutStarter, accounts *mockAccountReader, payments *mockPaymentLister) *BillingHandler {
	return NewBillingHandler(checkout, accounts, payments, testValidator(), testLogger())
}

func TestCreateCheckoutSession_Success(t *testing.T) {
	checkout := &mockCheckoutStarter{
		startCheckoutFn: func(ctx context.Context, accountID string, tier types.PlanTier, period types.BillingPeriod) (*types.CheckoutSession, error) {
			if accountID != "acc_1" {
				t.Errorf("expected account acc_1, got %s", accountID)
			}
			if tier != types.PlanPro || period != types.PeriodMonthly {
				t.Errorf("unexpected plan selection: %s/%s", tier, period)
			}
			return &types.CheckoutSession{SessionID: "cs_123", URL: "https://checkout.stripe.com/c/cs_123"}, nil
		},
	}
	h := newTestBillingHandler(checkout, nil, nil)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodPost, "/v1/billing/checkout-session",
		strings.NewReader(`{"tier":"pro","billing_period":"monthly"}`)), "acc_1")
	h.CreateCheckoutSession(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var session types.CheckoutSession
	decodeData(t, rec, &session)
	if session.SessionID != "cs_123" {
		t.Errorf("expected session cs_123, got %s", session.SessionID)
	}
	if session.URL == "" {
		t.Error("expected checkout url in response")
	}
}

func TestCreateCheckoutSession_UnknownTier(t *testing.T) {
	checkout := &mockCheckoutStarter{
		startCheckoutFn: func(ctx context.Context, accountID string, tier types.PlanTier, period types.BillingPeriod) (*types.CheckoutSession, error) {
			t.Error("service should not be called for invalid input")
			return nil, nil
		},
	}
	h := newTestBillingHandler(checkout, nil, nil)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodPost, "/v1/billing/checkout-session",
		strings.NewReader(`{"tier":"platinum","billing_period":"monthly"}`)), "acc_1")
	h.CreateCheckoutSession(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if code := errorCodeOf(t, rec); code != string(types.ErrCodeValidationInvalidTier) {
		t.Errorf("expected %s, got %s", types.ErrCodeValidationInvalidTier, code)
	}
}

func TestCreateCheckoutSession_FreeTierRejectedByService(t *testing.T) {
	// "free" is a valid tier name so it passes DTO validation; the service
	// rejects it because there is nothing to buy.
	checkout := &mockCheckoutStarter{
		startCheckoutFn: func(ctx context.Context, accountID string, tier types.PlanTier, period types.BillingPeriod) (*types.CheckoutSession, error) {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidTier, "free tier has no checkout", nil)
		},
	}
	h := newTestBillingHandler(checkout, nil, nil)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodPost, "/v1/billing/checkout-session",
		strings.NewReader(`{"tier":"free","billing_period":"monthly"}`)), "acc_1")
	h.CreateCheckoutSession(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreateCheckoutSession_NoActor(t *testing.T) {
	h := newTestBillingHandler(&mockCheckoutStarter{}, nil, nil)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/billing/checkout-session",
		strings.NewReader(`{"tier":"pro","billing_period":"monthly"}`))
	h.CreateCheckoutSession(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestCreateCheckoutSession_CardDeclinedMapsTo402(t *testing.T) {
	checkout := &mockCheckoutStarter{
		startCheckoutFn: func(ctx context.Context, accountID string, tier types.PlanTier, period types.BillingPeriod) (*types.CheckoutSession, error) {
			return nil, types.NewAppError(types.ErrCodePaymentDeclined, "card was declined", nil)
		},
	}
	h := newTestBillingHandler(checkout, nil, nil)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodPost, "/v1/billing/checkout-session",
		strings.NewReader(`{"tier":"pro","billing_period":"monthly"}`)), "acc_1")
	h.CreateCheckoutSession(rec, r)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", rec.Code)
	}
}

func TestCreatePortalSession_Success(t *testing.T) {
	checkout := &mockCheckoutStarter{
		startPortalFn: func(ctx context.Context, accountID string, returnURL string) (string, error) {
			if returnURL != "https://app.example.com/billing" {
				t.Errorf("expected return url passed through, got %q", returnURL)
			}
			return "https://billing.stripe.com/p/session/xyz", nil
		},
	}
	h := newTestBillingHandler(checkout, nil, nil)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodPost, "/v1/billing/portal-session",
		strings.NewReader(`{"return_url":"https://app.example.com/billing"}`)), "acc_1")
	h.CreatePortalSession(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp PortalResponse
	decodeData(t, rec, &resp)
	if resp.URL != "https://billing.stripe.com/p/session/xyz" {
		t.Errorf("unexpected portal url: %s", resp.URL)
	}
}

func TestCreatePortalSession_EmptyBodyUsesDefaultReturnURL(t *testing.T) {
	checkout := &mockCheckoutStarter{
		startPortalFn: func(ctx context.Context, accountID string, returnURL string) (string, error) {
			if returnURL != "" {
				t.Errorf("expected empty return url, got %q", returnURL)
			}
			return "https://billing.stripe.com/p/session/xyz", nil
		},
	}
	h := newTestBillingHandler(checkout, nil, nil)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodPost, "/v1/billing/portal-session", nil), "acc_1")
	h.CreatePortalSession(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreatePortalSession_NoBillingProfile(t *testing.T) {
	checkout := &mockCheckoutStarter{
		startPortalFn: func(ctx context.Context, accountID string, returnURL string) (string, error) {
			return "", types.NewAppError(
				types.ErrCodeValidationMissingField,
				"account has no billing profile yet; start a checkout first",
				nil,
			)
		},
	}
	h := newTestBillingHandler(checkout, nil, nil)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodPost, "/v1/billing/portal-session", nil), "acc_1")
	h.CreatePortalSession(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetSubscription_ActivePaidAccount(t *testing.T) {
	periodEnd := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	accounts := &mockAccountReader{account: &types.Account{
		ID:        "acc_1",
		Tier:      types.PlanPro,
		Status:    types.SubStatusActive,
		PeriodEnd: &periodEnd,
	}}
	h := newTestBillingHandler(nil, accounts, nil)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodGet, "/v1/billing/subscription", nil), "acc_1")
	h.GetSubscription(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view SubscriptionView
	decodeData(t, rec, &view)
	if view.Tier != types.PlanPro {
		t.Errorf("expected pro, got %s", view.Tier)
	}
	if !view.IsActive {
		t.Error("expected is_active true for active paid account")
	}
	if view.PeriodEnd == nil || !view.PeriodEnd.Equal(periodEnd) {
		t.Errorf("expected period end %v, got %v", periodEnd, view.PeriodEnd)
	}
}

func TestGetSubscription_PastDueIsInactive(t *testing.T) {
	accounts := &mockAccountReader{account: &types.Account{
		ID:     "acc_1",
		Tier:   types.PlanPro,
		Status: types.SubStatusPastDue,
	}}
	h := newTestBillingHandler(nil, accounts, nil)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodGet, "/v1/billing/subscription", nil), "acc_1")
	h.GetSubscription(rec, r)

	var view SubscriptionView
	decodeData(t, rec, &view)
	if view.IsActive {
		t.Error("expected is_active false for past_due subscription")
	}
	if view.Tier != types.PlanPro {
		t.Errorf("tier should still report pro, got %s", view.Tier)
	}
}

func TestGetSubscription_FreeAccount(t *testing.T) {
	accounts := &mockAccountReader{account: &types.Account{ID: "acc_1", Tier: types.PlanFree}}
	h := newTestBillingHandler(nil, accounts, nil)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodGet, "/v1/billing/subscription", nil), "acc_1")
	h.GetSubscription(rec, r)

	var view SubscriptionView
	decodeData(t, rec, &view)
	if view.Tier != types.PlanFree {
		t.Errorf("expected free, got %s", view.Tier)
	}
	if view.IsActive {
		t.Error("free accounts are not subscription-active")
	}
	if view.PeriodEnd != nil {
		t.Errorf("expected nil period end, got %v", view.PeriodEnd)
	}
}

func TestListPayments_ReturnsHistory(t *testing.T) {
	payments := &mockPaymentLister{records: []*types.PaymentRecord{
		{
			ID:            "pay_2",
			AmountCents:   2900,
			Currency:      "usd",
			Status:        types.PaymentSucceeded,
			Tier:          types.PlanPro,
			BillingPeriod: types.PeriodMonthly,
			CreatedAt:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:          "pay_1",
			AmountCents: 2900,
			Status:      types.PaymentFailed,
			Tier:        types.PlanPro,
			CreatedAt:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		},
	}}
	h := newTestBillingHandler(nil, nil, payments)

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodGet, "/v1/billing/payments", nil), "acc_1")
	h.ListPayments(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if payments.limit != maxPaymentHistory {
		t.Errorf("expected limit %d, got %d", maxPaymentHistory, payments.limit)
	}

	var views []PaymentView
	decodeData(t, rec, &views)
	if len(views) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(views))
	}
	if views[0].ID != "pay_2" || views[0].Status != types.PaymentSucceeded {
		t.Errorf("unexpected first row: %+v", views[0])
	}
	if views[1].Status != types.PaymentFailed {
		t.Errorf("expected failed payment in history: %+v", views[1])
	}
}

func TestListPayments_EmptyHistory(t *testing.T) {
	h := newTestBillingHandler(nil, nil, &mockPaymentLister{})

	rec := httptest.NewRecorder()
	r := withActor(httptest.NewRequest(http.MethodGet, "/v1/billing/payments", nil), "acc_1")
	h.ListPayments(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var views []PaymentView
	decodeData(t, rec, &views)
	if len(views) != 0 {
		t.Errorf("expected empty list, got %d rows", len(views))
	}
}
