package types

// PlanTier identifies the subscription level for an account.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// AllPlanTiers lists every valid tier. Used by validators and the pricing
// table to reject unknown tiers at the edge.
var AllPlanTiers = []PlanTier{PlanFree, PlanPro, PlanEnterprise}

// IsValid reports whether the tier is one of the known plan tiers.
func (t PlanTier) IsValid() bool {
	switch t {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// IsPaid reports whether the tier requires an active provider subscription.
func (t PlanTier) IsPaid() bool {
	return t == PlanPro || t == PlanEnterprise
}

// BillingPeriod identifies the billing interval of a paid subscription.
type BillingPeriod string

const (
	PeriodMonthly BillingPeriod = "monthly"
	PeriodYearly  BillingPeriod = "yearly"
)

// IsValid reports whether the period is a known billing interval.
func (p BillingPeriod) IsValid() bool {
	return p == PeriodMonthly || p == PeriodYearly
}

// SubscriptionStatus represents the provider-reported state of a billing
// subscription. The empty string means "no subscription" and is only valid
// together with PlanFree.
type SubscriptionStatus string

const (
	SubStatusNone     SubscriptionStatus = ""
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// GrantsAccess reports whether the status keeps a paid tier's features
// available. Lapsed states (past_due, canceled) must not retain access even
// while the tier field still names a paid plan.
func (s SubscriptionStatus) GrantsAccess() bool {
	return s == SubStatusActive || s == SubStatusTrialing
}

// PaymentStatus is the terminal outcome recorded on a PaymentRecord.
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// DenyReason explains an Access Gate denial.
type DenyReason string

const (
	DenyInsufficientTier     DenyReason = "insufficient_tier"
	DenyInactiveSubscription DenyReason = "inactive_subscription"
)
