package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"wayfarer/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey types.SecretString
	BaseURL   string // override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient implements BillingGateway by making direct HTTP calls to the
// Stripe REST API through BaseClient, which supplies the circuit breaker and
// upstream error mapping.
//
// The client carries no retry policy: checkout and portal calls sit on the
// user-facing request path where a slow call must fail visibly, and
// webhook-path lookups lean on the provider's own redelivery instead.
type StripeClient struct {
	base      *BaseClient
	secretKey types.SecretString
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a new StripeClient. The httpClient should carry a
// bounded timeout (config.BillingConfig.GatewayTimeout).
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig, opts ...BaseClientOption) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"stripe",
		NoRetryPolicy(),
		"Wayfarer/1.0",
		opts...,
	)

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// ---------------------------------------------------------------------------
// BillingGateway Implementation
// ---------------------------------------------------------------------------

// CreateCustomer creates a new Stripe customer carrying the account id as
// metadata. The caller persists the returned id; this method never reuses or
// searches for existing customers, the account store's compare-and-set is
// the authority on which customer wins.
func (s *StripeClient) CreateCustomer(ctx context.Context, accountID string, email string) (string, error) {
	params := url.Values{}
	params.Set("email", email)
	params.Set("metadata["+MetaAccountID+"]", accountID)

	resp, err := s.doPost(ctx, "/v1/customers", params)
	if err != nil {
		return "", s.wrapStripeError("CreateCustomer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateCustomer")
	}

	var customer stripeCustomer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe customer creation response",
			err,
		)
	}

	return customer.ID, nil
}

// CreateCheckoutSession generates a Stripe Checkout Session for a
// subscription purchase. The account id, tier, and billing period are set as
// metadata on both the session and the subscription it creates, so every
// later webhook (checkout completion and subscription lifecycle alike) can
// be correlated back to the account.
func (s *StripeClient) CreateCheckoutSession(
	ctx context.Context,
	customerID string,
	priceID string,
	meta types.CheckoutMetadata,
	urls types.RedirectURLs,
) (*types.CheckoutSession, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("mode", "subscription")
	params.Set("client_reference_id", meta.AccountID)
	params.Set("success_url", urls.Success)
	params.Set("cancel_url", urls.Cancel)
	params.Set("line_items[0][price]", priceID)
	params.Set("line_items[0][quantity]", "1")

	params.Set("metadata["+MetaAccountID+"]", meta.AccountID)
	params.Set("metadata["+MetaTier+"]", string(meta.Tier))
	params.Set("metadata["+MetaBillingPeriod+"]", string(meta.BillingPeriod))

	// Carried forward onto the subscription object by Stripe, so
	// customer.subscription.* events identify the account on their own.
	params.Set("subscription_data[metadata]["+MetaAccountID+"]", meta.AccountID)
	params.Set("subscription_data[metadata]["+MetaTier+"]", string(meta.Tier))
	params.Set("subscription_data[metadata]["+MetaBillingPeriod+"]", string(meta.BillingPeriod))

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	// Returned verbatim; the redirect URL is Stripe's, never synthesized.
	return &types.CheckoutSession{
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}

// CreatePortalSession generates a Stripe Billing Portal URL.
func (s *StripeClient) CreatePortalSession(ctx context.Context, customerID string, returnURL string) (string, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("return_url", returnURL)

	resp, err := s.doPost(ctx, "/v1/billing_portal/sessions", params)
	if err != nil {
		return "", s.wrapStripeError("CreatePortalSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreatePortalSession")
	}

	var session stripePortalSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe portal session response",
			err,
		)
	}

	return session.URL, nil
}

// GetSubscriptionPeriodEnd retrieves the current period end of the given
// subscription.
func (s *StripeClient) GetSubscriptionPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	resp, err := s.doGet(ctx, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil)
	if err != nil {
		return time.Time{}, s.wrapStripeError("GetSubscriptionPeriodEnd", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, s.handleErrorResponse(resp, "GetSubscriptionPeriodEnd")
	}

	var sub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return time.Time{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscription response",
			err,
		)
	}

	return time.Unix(sub.CurrentPeriodEnd, 0).UTC(), nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs an authenticated GET request to the Stripe API.
func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doPost performs an authenticated POST request with a form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by Stripe.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to an AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return s.mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

// mapStripeError translates a Stripe error into a types.AppError.
func (s *StripeClient) mapStripeError(operation string, statusCode int, stripeErr *stripeErrorBody) error {
	if stripeErr.Code == "card_declined" || stripeErr.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, stripeErr.Message),
			nil,
			map[string]any{
				"decline_code": stripeErr.DeclineCode,
				"stripe_code":  stripeErr.Code,
			},
		)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, stripeErr.Message),
			nil,
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with operation context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	// BaseClient errors (breaker open, mapped upstream failures) already
	// carry the right code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe Response Types (for JSON deserialization)
// ---------------------------------------------------------------------------

type stripeCustomer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripePortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeSubscription struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier implements WebhookVerifier using stripe-go's webhook
// signature verification: HMAC-SHA256 checking with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header and
// signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}
