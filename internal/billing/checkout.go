package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"wayfarer/internal/external"
	"wayfarer/internal/types"
)

// AccountStore is the minimal account access the checkout flow needs.
// Implemented by db.AccountRepository.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
	AttachProviderCustomerID(ctx context.Context, accountID, customerID string) error
}

// CheckoutService initiates provider checkout and billing portal sessions.
type CheckoutService struct {
	accounts     AccountStore
	gateway      external.BillingGateway
	prices       *PriceTable
	dashboardURL string
	logger       *slog.Logger
}

// NewCheckoutService creates a CheckoutService. dashboardURL is the base URL
// of the frontend; success, cancel, and portal-return destinations are
// derived from it rather than taken from client input.
func NewCheckoutService(
	accounts AccountStore,
	gateway external.BillingGateway,
	prices *PriceTable,
	dashboardURL string,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		accounts:     accounts,
		gateway:      gateway,
		prices:       prices,
		dashboardURL: strings.TrimSuffix(dashboardURL, "/"),
		logger:       logger,
	}
}

// StartCheckout maps a (tier, billing period) purchase request to a provider
// checkout session for the given account.
//
// If the account has no provider customer yet, one is created and attached
// first. Two concurrent first checkouts race on the attach; the loser adopts
// the id the winner stored and proceeds, so neither caller sees a conflict.
func (s *CheckoutService) StartCheckout(
	ctx context.Context,
	accountID string,
	tier types.PlanTier,
	period types.BillingPeriod,
) (*types.CheckoutSession, error) {
	priceID, err := s.prices.Resolve(tier, period)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, account)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(
		ctx,
		customerID,
		priceID,
		types.CheckoutMetadata{
			AccountID:     account.ID,
			Tier:          tier,
			BillingPeriod: period,
		},
		types.RedirectURLs{
			Success: s.dashboardURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
			Cancel:  s.dashboardURL + "/billing/cancel",
		},
	)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"account_id", account.ID,
		"tier", tier,
		"billing_period", period,
		"session_id", session.SessionID,
	)

	return session, nil
}

// StartPortal creates a billing portal session for an account that already
// has a provider customer. Accounts that never checked out have nothing to
// manage and get an InvalidRequest instead.
//
// A client-supplied return URL must share the dashboard's scheme and host;
// anything else is rejected so the portal cannot redirect off-site. An empty
// return URL falls back to the dashboard account page.
func (s *CheckoutService) StartPortal(ctx context.Context, accountID string, returnURL string) (string, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	if account.ProviderCustomerID == "" {
		return "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			"account has no billing profile yet; start a checkout first",
			nil,
		)
	}

	if returnURL == "" {
		returnURL = s.dashboardURL + "/account"
	} else if err := s.checkReturnURL(returnURL); err != nil {
		return "", err
	}

	return s.gateway.CreatePortalSession(ctx, account.ProviderCustomerID, returnURL)
}

// checkReturnURL rejects return URLs outside the dashboard origin.
func (s *CheckoutService) checkReturnURL(returnURL string) error {
	dashboard, err := url.Parse(s.dashboardURL)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "dashboard URL is not parseable", err)
	}

	ret, err := url.Parse(returnURL)
	if err != nil || ret.Scheme != dashboard.Scheme || ret.Host != dashboard.Host {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidReturn,
			"return_url must be on the dashboard origin",
			err,
			map[string]any{"allowed_origin": dashboard.Scheme + "://" + dashboard.Host},
		)
	}
	return nil
}

// ensureCustomer returns the account's provider customer id, creating and
// attaching one if the account has never been billed.
func (s *CheckoutService) ensureCustomer(ctx context.Context, account *types.Account) (string, error) {
	if account.ProviderCustomerID != "" {
		return account.ProviderCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, account.ID, account.Email)
	if err != nil {
		return "", err
	}

	attachErr := s.accounts.AttachProviderCustomerID(ctx, account.ID, customerID)
	if attachErr == nil {
		return customerID, nil
	}

	// A concurrent checkout attached a different customer first. The stored
	// id is authoritative; adopt it and continue. The customer created above
	// is orphaned on the provider side, which is harmless.
	var appErr *types.AppError
	if errors.As(attachErr, &appErr) && appErr.Code == types.ErrCodeConflictCustomer {
		fresh, readErr := s.accounts.GetByID(ctx, account.ID)
		if readErr != nil {
			return "", readErr
		}
		if fresh.ProviderCustomerID == "" {
			return "", attachErr
		}
		s.logger.InfoContext(ctx, "lost customer attach race, adopting stored id",
			"account_id", account.ID,
			"customer_id", fresh.ProviderCustomerID,
		)
		return fresh.ProviderCustomerID, nil
	}

	return "", attachErr
}
