package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"wayfarer/internal/types"
)

// maxRequestBodySize is the maximum allowed size of a request body (1 MB).
const maxRequestBodySize = 1 << 20

// errCodeValidationInvalidJSON is the error code for malformed JSON input.
const errCodeValidationInvalidJSON types.ErrorCode = "validation_invalid_json"

// APIResponse is the standard envelope for all successful API responses.
type APIResponse struct {
	Data interface{} `json:"data,omitempty"`
}

// APIErrorResponse is the standard envelope for all error API responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned to clients.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// errorEnvelope builds the error response body for a request.
func errorEnvelope(r *http.Request, code types.ErrorCode, message string, details map[string]any) APIErrorResponse {
	return APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			Details:   details,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
}

// JSON writes a JSON response with the given status code and data.
// If marshalling fails, it falls back to a 500 error response.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	body, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fallback := errorEnvelope(r, types.ErrCodeInternalUnexpected, "failed to marshal response", nil)
		_ = json.NewEncoder(w).Encode(fallback)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes an error response to the client. An error that is (or wraps)
// a *types.AppError keeps its code, message and details, with the HTTP status
// derived from the code. Anything else becomes a 500 with code
// "internal_unexpected_error"; wrapped internals are never exposed.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		resp := errorEnvelope(r, types.ErrCodeInternalUnexpected, "an unexpected error occurred", nil)
		JSON(w, r, http.StatusInternalServerError, resp)
		return
	}

	resp := errorEnvelope(r, appErr.Code, appErr.Message, appErr.Details)
	JSON(w, r, appErr.HTTPStatus(), resp)
}

// DecodeJSON reads the request body into dst, enforcing a 1 MB body limit
// and DisallowUnknownFields for strict JSON contracts.
//
// It returns a *types.AppError with code "validation_invalid_json" (400) on
// syntax errors, unknown fields, oversize bodies, empty bodies, and bodies
// containing more than one JSON value.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}

	if dec.More() {
		return types.NewAppError(
			errCodeValidationInvalidJSON,
			"request body must contain a single JSON object",
			nil,
		)
	}

	return nil
}

// mapDecodeError translates a json.Decoder error into a structured AppError.
// Every branch lands on the same code; only the message and details vary.
func mapDecodeError(err error) *types.AppError {
	var (
		maxBytesErr      *http.MaxBytesError
		syntaxErr        *json.SyntaxError
		unmarshalTypeErr *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &maxBytesErr):
		return types.NewAppError(errCodeValidationInvalidJSON, "request body must not exceed 1MB", err)

	case errors.As(err, &syntaxErr):
		return types.NewAppError(errCodeValidationInvalidJSON, "malformed JSON in request body", err)

	case errors.As(err, &unmarshalTypeErr):
		return types.NewAppErrorWithDetails(
			errCodeValidationInvalidJSON,
			"invalid value for field",
			err,
			map[string]any{
				"field":    unmarshalTypeErr.Field,
				"expected": unmarshalTypeErr.Type.String(),
			},
		)

	case strings.HasPrefix(err.Error(), "json: unknown field"):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return types.NewAppError(errCodeValidationInvalidJSON, "unknown field in request body: "+field, err)

	case errors.Is(err, io.EOF):
		return types.NewAppError(errCodeValidationInvalidJSON, "request body must not be empty", err)

	default:
		return types.NewAppError(errCodeValidationInvalidJSON, "invalid JSON in request body", err)
	}
}
