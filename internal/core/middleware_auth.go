package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"wayfarer/internal/billing"
	"wayfarer/internal/types"
)

// authPublicPaths lists URL paths that are exempt from authentication.
var authPublicPaths = map[string]bool{
	"/health":           true,
	"/v1/auth/register": true,
	"/v1/auth/login":    true,
}

// authPublicPrefixes lists path prefixes exempt from authentication.
// Provider callbacks authenticate with their own signature scheme.
var authPublicPrefixes = []string{
	"/webhooks/",
}

// AuthMiddleware wraps handlers requiring authentication.
//
//  1. Extracts the Bearer token from the Authorization header.
//  2. Calls TokenVerifier.Verify to resolve the token to an Actor.
//  3. Injects the Actor into the request context via types.WithActor.
//  4. Returns 401 Unauthorized on failure with distinct error codes:
//     - auth_token_missing: no Authorization header or empty Bearer token.
//     - auth_token_invalid: token is malformed or signature fails.
//     - auth_token_expired: token verifies but has expired.
//
// If the Tokens field on Server is nil (e.g. during tests that don't inject
// one), the middleware passes through without authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Tokens == nil {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Tokens.Verify(token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isPublicPath(path string) bool {
	if authPublicPaths[path] {
		return true
	}
	for _, prefix := range authPublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extractBearerToken parses the Authorization header value and returns the
// token string. It expects the format "Bearer <token>" (case-insensitive
// scheme per RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError inspects the error from TokenVerifier.Verify and writes
// the appropriate 401 response with the correct error code.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.Logger.Warn("authentication failed: token expired",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.Warn("authentication failed: token invalid",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
	}

	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

// writeAuthError writes a 401 Unauthorized JSON response with the given code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}

// RequireTiers returns middleware that gates a route behind the given plan
// tiers. The account snapshot is re-read from the store on every request, so
// a webhook-driven downgrade locks the route immediately.
//
// If the Actor is not present in context (unauthenticated), returns 401.
// If the account's tier is not among the required tiers, or its paid
// subscription has lapsed, returns 403 Forbidden.
func (s *Server) RequireTiers(accounts AccountSource, tiers ...types.PlanTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := types.GetActor(r.Context())
			if !ok {
				s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
				return
			}

			account, err := accounts.GetByID(r.Context(), actor.AccountID)
			if err != nil {
				Error(w, r, err)
				return
			}

			decision := billing.Authorize(account, tiers...)
			if !decision.Allowed {
				code := types.ErrCodePermissionTier
				message := "Plan tier is insufficient for this operation"
				if decision.Reason == types.DenyInactiveSubscription {
					code = types.ErrCodePermissionInactive
					message = "Subscription is not active"
				}
				resp := APIErrorResponse{
					Error: ErrorDetail{
						Code:      string(code),
						Message:   message,
						RequestID: types.GetRequestID(r.Context()),
					},
				}
				JSON(w, r, http.StatusForbidden, resp)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
