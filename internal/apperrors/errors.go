package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// These sentinel errors define the application-level error kinds. Lower
// layers wrap them with fmt.Errorf("%w") and callers test with errors.Is.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates failure during data validation.
	ErrValidation = errors.New("validation failed")
	// ErrDatabase indicates a general database interaction error.
	ErrDatabase = errors.New("database error")
	// ErrUnauthorized indicates an authentication or tenant scoping failure.
	ErrUnauthorized = errors.New("unauthorized access")
	// ErrDuplicate indicates a unique constraint hit.
	ErrDuplicate = errors.New("duplicate resource")
	// ErrConflict indicates the requested state change collides with existing state.
	ErrConflict = errors.New("resource conflict")
	// ErrBadRequest indicates a malformed or invalid request from the caller.
	ErrBadRequest = errors.New("bad request")
	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timeout")

	// ErrInvalidSignature is returned when a webhook body does not match its HMAC header.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrConversationNotFound is returned by sends targeting a missing conversation.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrWindowExpired is returned when a free-form message is sent outside the 24h session window.
	ErrWindowExpired = errors.New("session window expired, use a template message")
	// ErrProvider indicates the WhatsApp Cloud API rejected or failed a call.
	ErrProvider = errors.New("provider error")
)

// ProviderError carries the error code and message returned by the provider.
// It unwraps to ErrProvider.
type ProviderError struct {
	Code       string
	Message    string
	HTTPStatus int
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("provider error: %s", e.Message)
	}
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is(err, ErrProvider) match.
func (e *ProviderError) Unwrap() error {
	return ErrProvider
}

// NewProviderError builds a ProviderError.
func NewProviderError(code, message string, httpStatus int) *ProviderError {
	return &ProviderError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// AsProviderError extracts the ProviderError from err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsNotFoundError checks if the error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is or wraps ErrDuplicate.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsConflictError checks if the error is or wraps ErrConflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsBadRequestError checks if the error is or wraps ErrBadRequest.
func IsBadRequestError(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// HTTPStatus maps an error kind to the status code the REST layer answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrBadRequest), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrWindowExpired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable machine-readable identifier for an error kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return "INVALID_SIGNATURE"
	case errors.Is(err, ErrConversationNotFound):
		return "CONVERSATION_NOT_FOUND"
	case errors.Is(err, ErrWindowExpired):
		return "WINDOW_EXPIRED"
	case errors.Is(err, ErrProvider):
		return "PROVIDER_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBadRequest):
		return "BAD_REQUEST"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicate):
		return "CONFLICT"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	default:
		return "INTERNAL"
	}
}
