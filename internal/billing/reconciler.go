package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"wayfarer/internal/external"
	"wayfarer/internal/types"
)

// SnapshotStore is the subset of the account repository the reconciler
// mutates subscription state through.
type SnapshotStore interface {
	// ApplySubscriptionSnapshot atomically applies the snapshot and reports
	// whether a row was updated. Events older than the account's last applied
	// event, and events for accounts that no longer exist, report false.
	ApplySubscriptionSnapshot(ctx context.Context, accountID string, snap types.SubscriptionSnapshot) (bool, error)

	// Downgrade collapses the account to the free tier.
	Downgrade(ctx context.Context, accountID string, at time.Time) error
}

// PaymentLog appends audit rows for completed payments.
type PaymentLog interface {
	Insert(ctx context.Context, p *types.PaymentRecord) error
}

// EventLog tracks which provider events have already been applied.
type EventLog interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, appliedAt time.Time) (bool, error)
}

// Reconciler verifies inbound provider events and applies them to the local
// subscription snapshot as idempotent state transitions.
//
// The provider guarantees neither exactly-once nor in-order delivery. Both
// are handled here: the event log makes redelivery a no-op, and the store's
// event-timestamp guard discards updates older than what the snapshot
// already reflects.
type Reconciler struct {
	accounts SnapshotStore
	payments PaymentLog
	events   EventLog
	verifier external.WebhookVerifier
	gateway  external.BillingGateway
	secret   types.SecretString
	clock    types.Clock
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	accounts SnapshotStore,
	payments PaymentLog,
	events EventLog,
	verifier external.WebhookVerifier,
	gateway external.BillingGateway,
	secret types.SecretString,
	clock types.Clock,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		accounts: accounts,
		payments: payments,
		events:   events,
		verifier: verifier,
		gateway:  gateway,
		secret:   secret,
		clock:    clock,
		logger:   logger,
	}
}

// HandleEvent processes one raw webhook delivery.
//
// A non-nil return means the delivery must be rejected with a client error:
// the signature did not verify, the payload is not an event, or a checkout
// completion arrived without the metadata that identifies the account.
// Retrying such a delivery can never succeed, so the provider must not.
//
// Every other failure is recoverable: it is logged with full context and nil
// is returned so the delivery is acknowledged. The event is only recorded in
// the event log after successful application, so a crash or transient
// failure mid-processing leaves redelivery safe.
func (rc *Reconciler) HandleEvent(ctx context.Context, payload []byte, sigHeader string) error {
	if err := rc.verifier.Verify(payload, sigHeader, rc.secret.Unmask()); err != nil {
		return types.NewAppError(
			types.ErrCodeValidationBadSignature,
			"webhook signature verification failed",
			err,
		)
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return types.NewAppError(
			types.ErrCodeValidationMalformedEvent,
			"invalid webhook event JSON",
			err,
		)
	}
	if event.ID == "" || event.Type == "" {
		return types.NewAppError(
			types.ErrCodeValidationMalformedEvent,
			"webhook event missing id or type",
			nil,
		)
	}

	processed, err := rc.events.IsProcessed(ctx, event.ID)
	if err != nil {
		rc.logger.ErrorContext(ctx, "idempotency check failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		return nil
	}
	if processed {
		rc.logger.InfoContext(ctx, "skipping already processed event",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return nil
	}

	rc.logger.InfoContext(ctx, "processing billing event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	applyErr := rc.routeEvent(ctx, &event)
	if applyErr != nil {
		if isFatalEventError(applyErr) {
			return applyErr
		}
		rc.logger.ErrorContext(ctx, "event processing failed, acknowledging anyway",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", applyErr,
		)
		return nil
	}

	// Recorded only after successful application. A duplicate insert means a
	// concurrent delivery of the same event won the race, which is fine.
	if _, err := rc.events.MarkProcessed(ctx, event.ID, rc.clock.Now()); err != nil {
		rc.logger.ErrorContext(ctx, "failed to record processed event",
			"event_id", event.ID,
			"error", err,
		)
	}

	return nil
}

// routeEvent dispatches by event type. Unknown types are accepted and
// ignored; the provider's event catalog grows over time and an error here
// would cause endless redelivery.
func (rc *Reconciler) routeEvent(ctx context.Context, event *webhookEvent) error {
	switch event.Type {
	case external.EventCheckoutCompleted:
		return rc.handleCheckoutCompleted(ctx, event)

	case external.EventSubUpdated:
		return rc.handleSubscriptionUpdated(ctx, event)

	case external.EventSubDeleted:
		return rc.handleSubscriptionDeleted(ctx, event)

	case external.EventInvoicePaid:
		return rc.handleInvoicePayment(ctx, event, types.PaymentSucceeded)

	case external.EventPaymentFailed:
		return rc.handleInvoicePayment(ctx, event, types.PaymentFailed)

	default:
		rc.logger.InfoContext(ctx, "ignoring unhandled event type",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return nil
	}
}

// handleCheckoutCompleted activates the purchased tier. The session metadata
// is the sole channel identifying the account; if any field is missing the
// event is rejected rather than guessed at.
func (rc *Reconciler) handleCheckoutCompleted(ctx context.Context, event *webhookEvent) error {
	session, err := event.checkoutSession()
	if err != nil {
		return types.NewAppError(
			types.ErrCodeValidationMalformedEvent,
			fmt.Sprintf("checkout completion %s: unreadable session object", event.ID),
			err,
		)
	}

	meta, err := session.checkoutMetadata(event.ID)
	if err != nil {
		return err
	}

	var periodEnd *time.Time
	if session.Subscription != "" {
		end, err := rc.gateway.GetSubscriptionPeriodEnd(ctx, session.Subscription)
		if err != nil {
			return fmt.Errorf("checkout completion %s: period end lookup: %w", event.ID, err)
		}
		periodEnd = &end
	}

	tier := meta.Tier
	applied, err := rc.accounts.ApplySubscriptionSnapshot(ctx, meta.AccountID, types.SubscriptionSnapshot{
		Tier:      &tier,
		Status:    types.SubStatusActive,
		PeriodEnd: periodEnd,
		EventTime: event.timestamp(),
	})
	if err != nil {
		return fmt.Errorf("checkout completion %s: %w", event.ID, err)
	}
	if !applied {
		rc.logger.WarnContext(ctx, "checkout completion not applied",
			"event_id", event.ID,
			"account_id", meta.AccountID,
		)
		return nil
	}

	record := &types.PaymentRecord{
		AccountID:     meta.AccountID,
		ExternalID:    session.paymentID(event.ID),
		AmountCents:   session.AmountTotal,
		Currency:      session.Currency,
		Status:        types.PaymentSucceeded,
		Tier:          meta.Tier,
		BillingPeriod: meta.BillingPeriod,
		CreatedAt:     event.timestamp(),
	}
	if err := rc.payments.Insert(ctx, record); err != nil {
		return fmt.Errorf("checkout completion %s: payment record: %w", event.ID, err)
	}

	rc.logger.InfoContext(ctx, "subscription activated",
		"event_id", event.ID,
		"account_id", meta.AccountID,
		"tier", meta.Tier,
		"billing_period", meta.BillingPeriod,
	)
	return nil
}

// handleSubscriptionUpdated refreshes status and period end; the tier is
// left unchanged, checkout completion owns tier changes. The store rejects
// tier-preserving snapshots for free accounts, so an update delivered ahead
// of its checkout completion cannot advance the ordering watermark and
// shadow the upgrade.
func (rc *Reconciler) handleSubscriptionUpdated(ctx context.Context, event *webhookEvent) error {
	sub, err := event.subscription()
	if err != nil {
		rc.logger.WarnContext(ctx, "unreadable subscription object, ignoring",
			"event_id", event.ID,
			"error", err,
		)
		return nil
	}

	accountID := sub.Metadata[external.MetaAccountID]
	if accountID == "" {
		rc.logger.WarnContext(ctx, "subscription event without account metadata, ignoring",
			"event_id", event.ID,
			"subscription_id", sub.ID,
		)
		return nil
	}

	applied, err := rc.accounts.ApplySubscriptionSnapshot(ctx, accountID, types.SubscriptionSnapshot{
		Status:    mapSubscriptionStatus(sub.Status),
		PeriodEnd: sub.periodEnd(),
		EventTime: event.timestamp(),
	})
	if err != nil {
		return fmt.Errorf("subscription update %s: %w", event.ID, err)
	}
	if !applied {
		// The event is older than the snapshot, the account is gone, or the
		// account is still free and has no subscription to refresh.
		rc.logger.InfoContext(ctx, "subscription update discarded",
			"event_id", event.ID,
			"account_id", accountID,
		)
	}
	return nil
}

// handleSubscriptionDeleted collapses the account to the free tier.
func (rc *Reconciler) handleSubscriptionDeleted(ctx context.Context, event *webhookEvent) error {
	sub, err := event.subscription()
	if err != nil {
		rc.logger.WarnContext(ctx, "unreadable subscription object, ignoring",
			"event_id", event.ID,
			"error", err,
		)
		return nil
	}

	accountID := sub.Metadata[external.MetaAccountID]
	if accountID == "" {
		rc.logger.WarnContext(ctx, "subscription deletion without account metadata, ignoring",
			"event_id", event.ID,
			"subscription_id", sub.ID,
		)
		return nil
	}

	if err := rc.accounts.Downgrade(ctx, accountID, event.timestamp()); err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeNotFoundAccount {
			rc.logger.WarnContext(ctx, "subscription deletion for unknown account, ignoring",
				"event_id", event.ID,
				"account_id", accountID,
			)
			return nil
		}
		return fmt.Errorf("subscription deletion %s: %w", event.ID, err)
	}

	rc.logger.InfoContext(ctx, "subscription canceled, account downgraded",
		"event_id", event.ID,
		"account_id", accountID,
	)
	return nil
}

// handleInvoicePayment records invoice outcomes for audit. Invoice events
// never mutate the subscription snapshot; that is driven exclusively by
// subscription update/deletion events so two event types cannot race to set
// the same field.
func (rc *Reconciler) handleInvoicePayment(ctx context.Context, event *webhookEvent, status types.PaymentStatus) error {
	invoice, err := event.invoice()
	if err != nil {
		rc.logger.WarnContext(ctx, "unreadable invoice object, ignoring",
			"event_id", event.ID,
			"error", err,
		)
		return nil
	}

	accountID := invoice.accountID()
	if accountID == "" {
		rc.logger.WarnContext(ctx, "invoice event without account metadata, ignoring",
			"event_id", event.ID,
		)
		return nil
	}

	amount := invoice.AmountPaid
	if status == types.PaymentFailed {
		amount = invoice.AmountDue
	}

	record := &types.PaymentRecord{
		AccountID:     accountID,
		ExternalID:    invoice.paymentID(event.ID),
		AmountCents:   amount,
		Currency:      invoice.Currency,
		Status:        status,
		Tier:          types.PlanTier(invoice.meta(external.MetaTier)),
		BillingPeriod: types.BillingPeriod(invoice.meta(external.MetaBillingPeriod)),
		CreatedAt:     event.timestamp(),
	}
	if err := rc.payments.Insert(ctx, record); err != nil {
		return fmt.Errorf("invoice event %s: payment record: %w", event.ID, err)
	}

	if status == types.PaymentFailed {
		rc.logger.WarnContext(ctx, "invoice payment failed",
			"event_id", event.ID,
			"account_id", accountID,
			"amount_cents", amount,
		)
	}
	return nil
}

// isFatalEventError reports whether the error must fail the webhook delivery
// instead of being acknowledged: only malformed-event rejections qualify,
// per the propagation policy above.
func isFatalEventError(err error) bool {
	appErr, ok := err.(*types.AppError)
	return ok && appErr.Code == types.ErrCodeValidationMalformedEvent
}

// mapSubscriptionStatus translates the provider's subscription status into
// the local enum. Statuses outside the modeled set (incomplete, unpaid, and
// whatever the provider adds next) map to past_due: the subscription exists
// but must not grant access.
func mapSubscriptionStatus(status string) types.SubscriptionStatus {
	switch status {
	case "active":
		return types.SubStatusActive
	case "trialing":
		return types.SubStatusTrialing
	case "past_due":
		return types.SubStatusPastDue
	case "canceled":
		return types.SubStatusCanceled
	default:
		return types.SubStatusPastDue
	}
}

// ---------------------------------------------------------------------------
// Event Parsing
// ---------------------------------------------------------------------------

// webhookEvent is a minimal representation of a provider webhook event,
// tailored to the fields routing and processing need. Avoiding the full
// stripe.Event type keeps the reconciler decoupled from the SDK and makes
// tests plain JSON fixtures.
type webhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    eventData       `json:"data"`
}

type eventData struct {
	Object json.RawMessage `json:"object"`
}

// checkoutSessionObj holds the fields read from a checkout.session.completed
// data object.
type checkoutSessionObj struct {
	ID            string            `json:"id"`
	Metadata      map[string]string `json:"metadata"`
	Subscription  string            `json:"subscription"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
}

// subscriptionObj holds the fields read from subscription lifecycle events.
type subscriptionObj struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
}

// invoiceObj holds the fields read from invoice events.
type invoiceObj struct {
	PaymentIntent       string            `json:"payment_intent"`
	AmountPaid          int64             `json:"amount_paid"`
	AmountDue           int64             `json:"amount_due"`
	Currency            string            `json:"currency"`
	Metadata            map[string]string `json:"metadata"`
	SubscriptionDetails *struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

func (e *webhookEvent) timestamp() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

func (e *webhookEvent) checkoutSession() (*checkoutSessionObj, error) {
	var session checkoutSessionObj
	if err := json.Unmarshal(e.Data.Object, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (e *webhookEvent) subscription() (*subscriptionObj, error) {
	var sub subscriptionObj
	if err := json.Unmarshal(e.Data.Object, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (e *webhookEvent) invoice() (*invoiceObj, error) {
	var invoice invoiceObj
	if err := json.Unmarshal(e.Data.Object, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// checkoutMetadata validates and extracts the {account, tier, period}
// metadata set at session creation. All three fields are required; a missing
// field fails closed instead of guessing a tier.
func (s *checkoutSessionObj) checkoutMetadata(eventID string) (*types.CheckoutMetadata, error) {
	accountID := s.Metadata[external.MetaAccountID]
	tier := types.PlanTier(s.Metadata[external.MetaTier])
	period := types.BillingPeriod(s.Metadata[external.MetaBillingPeriod])

	switch {
	case accountID == "":
		return nil, malformedCheckout(eventID, external.MetaAccountID)
	case tier == "":
		return nil, malformedCheckout(eventID, external.MetaTier)
	case !tier.IsValid() || tier == types.PlanFree:
		return nil, types.NewAppError(
			types.ErrCodeValidationMalformedEvent,
			fmt.Sprintf("checkout completion %s: metadata tier %q is not purchasable", eventID, tier),
			nil,
		)
	case period == "":
		return nil, malformedCheckout(eventID, external.MetaBillingPeriod)
	case !period.IsValid():
		return nil, types.NewAppError(
			types.ErrCodeValidationMalformedEvent,
			fmt.Sprintf("checkout completion %s: metadata billing period %q is unknown", eventID, period),
			nil,
		)
	}

	return &types.CheckoutMetadata{
		AccountID:     accountID,
		Tier:          tier,
		BillingPeriod: period,
	}, nil
}

func malformedCheckout(eventID, field string) *types.AppError {
	return types.NewAppError(
		types.ErrCodeValidationMalformedEvent,
		fmt.Sprintf("checkout completion %s: metadata missing %s", eventID, field),
		nil,
	)
}

// paymentID returns the best external id for the payment audit row: the
// payment intent when present, otherwise the session id, otherwise the event
// id. The payment log dedupes on this value.
func (s *checkoutSessionObj) paymentID(eventID string) string {
	if s.PaymentIntent != "" {
		return s.PaymentIntent
	}
	if s.ID != "" {
		return s.ID
	}
	return eventID
}

func (i *invoiceObj) paymentID(eventID string) string {
	if i.PaymentIntent != "" {
		return i.PaymentIntent
	}
	return eventID
}

// accountID resolves the account from subscription_details metadata first,
// falling back to the invoice's own metadata.
func (i *invoiceObj) accountID() string {
	if i.SubscriptionDetails != nil {
		if id := i.SubscriptionDetails.Metadata[external.MetaAccountID]; id != "" {
			return id
		}
	}
	return i.Metadata[external.MetaAccountID]
}

func (i *invoiceObj) meta(key string) string {
	if i.SubscriptionDetails != nil {
		if v := i.SubscriptionDetails.Metadata[key]; v != "" {
			return v
		}
	}
	return i.Metadata[key]
}

func (s *subscriptionObj) periodEnd() *time.Time {
	if s.CurrentPeriodEnd == 0 {
		return nil
	}
	end := time.Unix(s.CurrentPeriodEnd, 0).UTC()
	return &end
}
