package types

import "time"

// Account is the persistent record of one user's identity, credentials, and
// current subscription snapshot.
//
// Invariants (enforced at the point of mutation, not just at creation):
//   - Tier == PlanFree implies Status == SubStatusNone and PeriodEnd == nil.
//   - A paid tier always carries a non-empty Status.
//   - ProviderCustomerID, once set, is immutable and unique across accounts.
type Account struct {
	ID             string
	Email          string
	Name           string
	CredentialHash string

	Tier               PlanTier
	Status             SubscriptionStatus
	PeriodEnd          *time.Time
	ProviderCustomerID string

	// LastEventAt is the timestamp of the provider event most recently applied
	// to the snapshot. Out-of-order webhook deliveries older than this are
	// discarded by the store's guarded update.
	LastEventAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscriptionSnapshot is the mutation applied by the webhook reconciler.
// A nil Tier leaves the account's tier unchanged (subscription.updated events
// refresh status/period only).
type SubscriptionSnapshot struct {
	Tier      *PlanTier
	Status    SubscriptionStatus
	PeriodEnd *time.Time

	// EventTime orders competing updates: the store rejects snapshots whose
	// EventTime is not newer than the account's LastEventAt.
	EventTime time.Time
}

// PaymentRecord is one row per successfully completed checkout or renewal.
// Append-only; used for display/audit, never for access control.
type PaymentRecord struct {
	ID            string
	AccountID     string
	ExternalID    string
	AmountCents   int64
	Currency      string
	Status        PaymentStatus
	Tier          PlanTier
	BillingPeriod BillingPeriod
	CreatedAt     time.Time
}

// CheckoutSession is the provider-issued checkout flow handle returned to the
// caller verbatim.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// RedirectURLs carries the server-controlled success/cancel destinations for
// a checkout session. Never derived from client input.
type RedirectURLs struct {
	Success string
	Cancel  string
}

// CheckoutMetadata is the metadata attached to every checkout session. It is
// the sole channel by which the reconciler later learns which account a
// completed session belongs to.
type CheckoutMetadata struct {
	AccountID     string
	Tier          PlanTier
	BillingPeriod BillingPeriod
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
