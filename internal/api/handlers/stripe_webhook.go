package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wayfarer/internal/core"
	"wayfarer/internal/types"
)

// maxWebhookBodySize bounds webhook payloads (64 KB). Stripe events are far
// smaller; anything larger is not a legitimate event.
const maxWebhookBodySize = 64 * 1024

// EventProcessor verifies a provider event and applies its state transition.
//
// A non-nil error means the delivery itself is unusable (bad signature,
// unparseable payload) and must be rejected so the provider does not treat
// it as consumed. Recoverable processing failures are handled inside the
// processor and surface here as nil.
type EventProcessor interface {
	HandleEvent(ctx context.Context, payload []byte, sigHeader string) error
}

// webhookAck is the body returned for every acknowledged delivery.
type webhookAck struct {
	Received bool `json:"received"`
}

// StripeWebhookHandler handles POST /webhooks/stripe. The route bypasses
// bearer auth; the provider signature is the sole authentication.
type StripeWebhookHandler struct {
	processor EventProcessor
	logger    *slog.Logger
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler.
func NewStripeWebhookHandler(processor EventProcessor, l *slog.Logger) *StripeWebhookHandler {
	if l == nil {
		l = slog.Default()
	}
	return &StripeWebhookHandler{
		processor: processor,
		logger:    l,
	}
}

// RegisterRoutes mounts the webhook endpoint under the /webhooks group.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/stripe", h.HandleWebhook)
}

// HandleWebhook reads the raw request body before any JSON parsing; the
// signature is computed over the exact bytes Stripe sent, so the body must
// not pass through a decoder first.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMalformedEvent,
			"could not read event payload",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")

	if err := h.processor.HandleEvent(r.Context(), payload, sigHeader); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, webhookAck{Received: true})
}
