// Package billing implements the subscription lifecycle core: checkout
// initiation, webhook reconciliation, and request-time access decisions.
package billing

import (
	"fmt"

	"wayfarer/internal/config"
	"wayfarer/internal/types"
)

// priceKey identifies one purchasable plan variant.
type priceKey struct {
	tier   types.PlanTier
	period types.BillingPeriod
}

// PriceTable is the static mapping from (tier, billing period) to the
// provider's price identifier. Loaded once at startup from configuration and
// read-only afterwards.
type PriceTable struct {
	prices map[priceKey]string
}

// NewPriceTable builds the price table from billing configuration. Every
// paid tier/period combination must have a configured price id; config
// validation enforces that before this is called.
func NewPriceTable(cfg config.BillingConfig) *PriceTable {
	return &PriceTable{
		prices: map[priceKey]string{
			{types.PlanPro, types.PeriodMonthly}:        cfg.PriceProMonthly,
			{types.PlanPro, types.PeriodYearly}:         cfg.PriceProYearly,
			{types.PlanEnterprise, types.PeriodMonthly}: cfg.PriceEnterpriseMonthly,
			{types.PlanEnterprise, types.PeriodYearly}:  cfg.PriceEnterpriseYearly,
		},
	}
}

// Resolve returns the provider price id for the given tier and period.
// The free tier has no price and resolves to an InvalidRequest error, as
// does any unknown combination.
func (t *PriceTable) Resolve(tier types.PlanTier, period types.BillingPeriod) (string, error) {
	if tier == types.PlanFree {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidTier,
			"the free tier does not require checkout",
			nil,
		)
	}
	if !tier.IsValid() {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidTier,
			fmt.Sprintf("unknown plan tier %q", tier),
			nil,
		)
	}
	if !period.IsValid() {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidPeriod,
			fmt.Sprintf("unknown billing period %q", period),
			nil,
		)
	}

	priceID, ok := t.prices[priceKey{tier, period}]
	if !ok || priceID == "" {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidTier,
			fmt.Sprintf("no price configured for tier %q period %q", tier, period),
			nil,
		)
	}
	return priceID, nil
}
