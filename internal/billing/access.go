package billing

import "wayfarer/internal/types"

// Decision is the outcome of an access check. Denied is a normal
// control-flow value, not an error.
type Decision struct {
	Allowed bool
	Reason  types.DenyReason
}

// Allowed is the positive access decision.
var Allowed = Decision{Allowed: true}

// Denied constructs a negative decision with the given reason.
func Denied(reason types.DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Authorize decides whether the account's current subscription snapshot grants
// access to an operation restricted to the given tiers.
//
// The decision is pure: it reads only the locally reconciled snapshot and
// never calls the billing provider. The snapshot may lag the provider's
// ground truth by webhook delivery latency; that lag is an accepted
// trade-off bounded by the inactive-subscription check below, which strips
// access from a lapsed paid account even before a delayed downgrade event
// lands.
func Authorize(account *types.Account, requiredTiers ...types.PlanTier) Decision {
	tierOK := false
	for _, tier := range requiredTiers {
		if account.Tier == tier {
			tierOK = true
			break
		}
	}
	if !tierOK {
		return Denied(types.DenyInsufficientTier)
	}

	if account.Tier.IsPaid() && !account.Status.GrantsAccess() {
		return Denied(types.DenyInactiveSubscription)
	}

	return Allowed
}

// IsActive reports whether the account currently holds an active paid
// subscription. FREE accounts are never "active": the flag describes a paid
// subscription in good standing, and FREE has no subscription at all.
func IsActive(account *types.Account) bool {
	return account.Tier.IsPaid() && account.Status.GrantsAccess()
}
