package external

import (
	"context"
	"time"

	"wayfarer/internal/types"
)

// BillingGateway abstracts the payment provider's API. It wraps exactly the
// external calls the billing core needs and carries no business logic of its
// own; failures propagate as AppErrors with the provider's status, never
// swallowed.
type BillingGateway interface {
	// CreateCustomer creates a provider customer for the given account and
	// returns its opaque customer id. The account id is attached as metadata
	// so orphaned customers remain traceable.
	CreateCustomer(ctx context.Context, accountID string, email string) (string, error)

	// CreateCheckoutSession starts a provider-hosted checkout flow. The
	// metadata is echoed back on completion and is the sole channel by which
	// the webhook reconciler learns which account the session belongs to.
	CreateCheckoutSession(ctx context.Context, customerID string, priceID string, meta types.CheckoutMetadata, urls types.RedirectURLs) (*types.CheckoutSession, error)

	// CreatePortalSession generates a self-serve billing portal URL.
	CreatePortalSession(ctx context.Context, customerID string, returnURL string) (string, error)

	// GetSubscriptionPeriodEnd looks up the current period end of the given
	// provider subscription. Used by the reconciler to stamp the snapshot
	// after checkout completion.
	GetSubscriptionPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error)
}

// WebhookVerifier abstracts provider webhook signature checking. Verification
// runs over the exact raw bytes the provider sent, before any JSON parsing.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the signature header and
	// signing secret. Returns nil on success, an error on failure.
	Verify(payload []byte, header string, secret string) error
}

// Stripe event type constants prevent magic strings in the reconciler.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventSubUpdated        = "customer.subscription.updated"
	EventSubDeleted        = "customer.subscription.deleted"
	EventInvoicePaid       = "invoice.payment_succeeded"
	EventPaymentFailed     = "invoice.payment_failed"
)

// Metadata keys set on customers, checkout sessions, and subscriptions at
// creation time. The reconciler reads the same keys back off webhook events.
const (
	MetaAccountID     = "account_id"
	MetaTier          = "tier"
	MetaBillingPeriod = "billing_period"
)
