package core

import (
	"context"

	"wayfarer/internal/types"
)

// TokenVerifier decouples the HTTP layer from the concrete token mechanism,
// allowing for easy mocking in tests.
type TokenVerifier interface {
	// Verify parses and validates a bearer token and returns the Actor it
	// identifies.
	//
	// Distinct error codes:
	//   - ErrCodeAuthTokenInvalid if the token is malformed or the signature
	//     does not verify.
	//   - ErrCodeAuthTokenExpired if the token verifies but has expired.
	Verify(token string) (*types.Actor, error)
}

// AccountSource provides the current account snapshot for tier gating.
// The snapshot is re-read on every gated request so that a webhook-driven
// downgrade takes effect immediately.
type AccountSource interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
}
