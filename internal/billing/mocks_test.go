package billing

import (
	"context"
	"time"

	"wayfarer/internal/types"
)

// ---------------------------------------------------------------------------
// Hand-rolled mocks shared by the checkout and reconciler tests
// ---------------------------------------------------------------------------

type mockAccountStore struct {
	getByIDFn   func(ctx context.Context, id string) (*types.Account, error)
	attachFn    func(ctx context.Context, accountID, customerID string) error
	applyFn     func(ctx context.Context, accountID string, snap types.SubscriptionSnapshot) (bool, error)
	downgradeFn func(ctx context.Context, accountID string, at time.Time) error

	applyCalls     int
	downgradeCalls int
}

func (m *mockAccountStore) GetByID(ctx context.Context, id string) (*types.Account, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &types.Account{ID: id, Email: "user@example.com", Tier: types.PlanFree}, nil
}

func (m *mockAccountStore) AttachProviderCustomerID(ctx context.Context, accountID, customerID string) error {
	if m.attachFn != nil {
		return m.attachFn(ctx, accountID, customerID)
	}
	return nil
}

func (m *mockAccountStore) ApplySubscriptionSnapshot(ctx context.Context, accountID string, snap types.SubscriptionSnapshot) (bool, error) {
	m.applyCalls++
	if m.applyFn != nil {
		return m.applyFn(ctx, accountID, snap)
	}
	return true, nil
}

func (m *mockAccountStore) Downgrade(ctx context.Context, accountID string, at time.Time) error {
	m.downgradeCalls++
	if m.downgradeFn != nil {
		return m.downgradeFn(ctx, accountID, at)
	}
	return nil
}

type mockGateway struct {
	createCustomerFn func(ctx context.Context, accountID, email string) (string, error)
	createCheckoutFn func(ctx context.Context, customerID, priceID string, meta types.CheckoutMetadata, urls types.RedirectURLs) (*types.CheckoutSession, error)
	createPortalFn   func(ctx context.Context, customerID, returnURL string) (string, error)
	periodEndFn      func(ctx context.Context, subscriptionID string) (time.Time, error)

	createCustomerCalls int
}

func (m *mockGateway) CreateCustomer(ctx context.Context, accountID string, email string) (string, error) {
	m.createCustomerCalls++
	if m.createCustomerFn != nil {
		return m.createCustomerFn(ctx, accountID, email)
	}
	return "cus_mock", nil
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, customerID string, priceID string, meta types.CheckoutMetadata, urls types.RedirectURLs) (*types.CheckoutSession, error) {
	if m.createCheckoutFn != nil {
		return m.createCheckoutFn(ctx, customerID, priceID, meta, urls)
	}
	return &types.CheckoutSession{SessionID: "cs_mock", URL: "https://checkout.example.com/cs_mock"}, nil
}

func (m *mockGateway) CreatePortalSession(ctx context.Context, customerID string, returnURL string) (string, error) {
	if m.createPortalFn != nil {
		return m.createPortalFn(ctx, customerID, returnURL)
	}
	return "https://portal.example.com/session", nil
}

func (m *mockGateway) GetSubscriptionPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	if m.periodEndFn != nil {
		return m.periodEndFn(ctx, subscriptionID)
	}
	return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), nil
}

type mockVerifier struct {
	err error
}

func (m *mockVerifier) Verify(payload []byte, header string, secret string) error {
	return m.err
}

type mockPaymentLog struct {
	insertFn func(ctx context.Context, p *types.PaymentRecord) error
	inserted []*types.PaymentRecord
}

func (m *mockPaymentLog) Insert(ctx context.Context, p *types.PaymentRecord) error {
	if m.insertFn != nil {
		if err := m.insertFn(ctx, p); err != nil {
			return err
		}
	}
	m.inserted = append(m.inserted, p)
	return nil
}

type mockEventLog struct {
	isProcessedFn func(ctx context.Context, eventID string) (bool, error)
	markFn        func(ctx context.Context, eventID string, appliedAt time.Time) (bool, error)

	marked []string
}

func (m *mockEventLog) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if m.isProcessedFn != nil {
		return m.isProcessedFn(ctx, eventID)
	}
	return false, nil
}

func (m *mockEventLog) MarkProcessed(ctx context.Context, eventID string, appliedAt time.Time) (bool, error) {
	if m.markFn != nil {
		return m.markFn(ctx, eventID, appliedAt)
	}
	m.marked = append(m.marked, eventID)
	return true, nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}
