package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"wayfarer/internal/core"
	"wayfarer/internal/types"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

type mockIdentityService struct {
	registerFn func(ctx context.Context, email, password, name string) (*types.Account, string, error)
	loginFn    func(ctx context.Context, email, password string) (*types.Account, string, error)
}

func (m *mockIdentityService) Register(ctx context.Context, email, password, name string) (*types.Account, string, error) {
	return m.registerFn(ctx, email, password, name)
}

func (m *mockIdentityService) Login(ctx context.Context, email, password string) (*types.Account, string, error) {
	return m.loginFn(ctx, email, password)
}

type mockCheckoutStarter struct {
	startCheckoutFn func(ctx context.Context, accountID string, tier types.PlanTier, period types.BillingPeriod) (*types.CheckoutSession, error)
	startPortalFn   func(ctx context.Context, accountID string, returnURL string) (string, error)
}

func (m *mockCheckoutStarter) StartCheckout(ctx context.Context, accountID string, tier types.PlanTier, period types.BillingPeriod) (*types.CheckoutSession, error) {
	return m.startCheckoutFn(ctx, accountID, tier, period)
}

func (m *mockCheckoutStarter) StartPortal(ctx context.Context, accountID string, returnURL string) (string, error) {
	return m.startPortalFn(ctx, accountID, returnURL)
}

type mockAccountReader struct {
	account *types.Account
	err     error
}

func (m *mockAccountReader) GetByID(ctx context.Context, id string) (*types.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.account, nil
}

type mockPaymentLister struct {
	records []*types.PaymentRecord
	err     error
	limit   int
}

func (m *mockPaymentLister) ListByAccount(ctx context.Context, accountID string, limit int) ([]*types.PaymentRecord, error) {
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

type mockEventProcessor struct {
	err      error
	payloads [][]byte
	headers  []string
}

func (m *mockEventProcessor) HandleEvent(ctx context.Context, payload []byte, sigHeader string) error {
	m.payloads = append(m.payloads, payload)
	m.headers = append(m.headers, sigHeader)
	return m.err
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

func testValidator() *core.Validator {
	return core.NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withActor attaches an authenticated actor to the request, as the chassis
// auth middleware would.
func withActor(r *http.Request, accountID string) *http.Request {
	ctx := types.WithActor(r.Context(), types.Actor{AccountID: accountID, Email: accountID + "@example.com"})
	return r.WithContext(ctx)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		t.Fatalf("failed to decode response data: %v", err)
	}
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return envelope.Error.Code
}
