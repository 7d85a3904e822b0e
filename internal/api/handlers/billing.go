package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"wayfarer/internal/billing"
	"wayfarer/internal/core"
	"wayfarer/internal/types"
)

// maxPaymentHistory caps the number of rows returned by the payments
// endpoint.
const maxPaymentHistory = 100

// CheckoutStarter abstracts the provider-facing checkout and portal flows.
type CheckoutStarter interface {
	StartCheckout(ctx context.Context, accountID string, tier types.PlanTier, period types.BillingPeriod) (*types.CheckoutSession, error)
	StartPortal(ctx context.Context, accountID string, returnURL string) (string, error)
}

// AccountReader provides the minimal read access the billing handler needs.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
}

// PaymentLister reads the append-only payment history.
type PaymentLister interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*types.PaymentRecord, error)
}

// CreateCheckoutRequest is the request body for POST /v1/billing/checkout-session.
//
// Success and cancel URLs are intentionally absent: they are constructed
// server-side from the configured dashboard URL, never from client input.
type CreateCheckoutRequest struct {
	Tier          types.PlanTier      `json:"tier" validate:"required,plan_tier"`
	BillingPeriod types.BillingPeriod `json:"billing_period" validate:"required,billing_period"`
}

// CreatePortalRequest is the request body for POST /v1/billing/portal-session.
// ReturnURL is optional and restricted to the dashboard origin by the service.
type CreatePortalRequest struct {
	ReturnURL string `json:"return_url,omitempty" validate:"omitempty,url"`
}

// PortalResponse is the response for POST /v1/billing/portal-session.
type PortalResponse struct {
	URL string `json:"url"`
}

// SubscriptionView is the response for GET /v1/billing/subscription. It is
// served entirely from the local snapshot; the provider is never consulted.
type SubscriptionView struct {
	Tier      types.PlanTier           `json:"tier"`
	Status    types.SubscriptionStatus `json:"status,omitempty"`
	PeriodEnd *time.Time               `json:"period_end,omitempty"`
	IsActive  bool                     `json:"is_active"`
}

// PaymentView is one row of the payment history response.
type PaymentView struct {
	ID            string              `json:"id"`
	AmountCents   int64               `json:"amount_cents"`
	Currency      string              `json:"currency,omitempty"`
	Status        types.PaymentStatus `json:"status"`
	Tier          types.PlanTier      `json:"tier"`
	BillingPeriod types.BillingPeriod `json:"billing_period,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// BillingHandler handles the synchronous billing actions initiated by the
// authenticated user.
type BillingHandler struct {
	checkout  CheckoutStarter
	accounts  AccountReader
	payments  PaymentLister
	validator *core.Validator
	logger    *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(
	checkout CheckoutStarter,
	accounts AccountReader,
	payments PaymentLister,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		checkout:  checkout,
		accounts:  accounts,
		payments:  payments,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the billing endpoints. All require authentication,
// applied by the parent router's middleware chain.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout-session", h.CreateCheckoutSession)
	r.Post("/billing/portal-session", h.CreatePortalSession)
	r.Get("/billing/subscription", h.GetSubscription)
	r.Get("/billing/payments", h.ListPayments)
}

// CreateCheckoutSession handles POST /v1/billing/checkout-session.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"Authentication required",
			nil,
		))
		return
	}

	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	session, err := h.checkout.StartCheckout(r.Context(), actor.AccountID, req.Tier, req.BillingPeriod)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create checkout session",
			"account_id", actor.AccountID,
			"tier", req.Tier,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: session})
}

// CreatePortalSession handles POST /v1/billing/portal-session. Accounts that
// have never checked out have no provider customer and are rejected with a
// 400; the portal never creates a customer as a side effect.
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"Authentication required",
			nil,
		))
		return
	}

	// The body is optional; an absent body means default return URL.
	var req CreatePortalRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	url, err := h.checkout.StartPortal(r.Context(), actor.AccountID, req.ReturnURL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create portal session",
			"account_id", actor.AccountID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PortalResponse{URL: url}})
}

// GetSubscription handles GET /v1/billing/subscription. The response reads
// the locally stored snapshot only, so it reflects the provider's state as
// of the last applied webhook.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"Authentication required",
			nil,
		))
		return
	}

	account, err := h.accounts.GetByID(r.Context(), actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SubscriptionView{
		Tier:      account.Tier,
		Status:    account.Status,
		PeriodEnd: account.PeriodEnd,
		IsActive:  billing.IsActive(account),
	}})
}

// ListPayments handles GET /v1/billing/payments, newest first.
func (h *BillingHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"Authentication required",
			nil,
		))
		return
	}

	records, err := h.payments.ListByAccount(r.Context(), actor.AccountID, maxPaymentHistory)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	views := make([]PaymentView, 0, len(records))
	for _, rec := range records {
		views = append(views, PaymentView{
			ID:            rec.ID,
			AmountCents:   rec.AmountCents,
			Currency:      rec.Currency,
			Status:        rec.Status,
			Tier:          rec.Tier,
			BillingPeriod: rec.BillingPeriod,
			CreatedAt:     rec.CreatedAt,
		})
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: views})
}
