package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Input validation (VAL) ----

// Validation reports malformed or missing input.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) *AppError {
	return Validation(fmt.Sprintf(format, args...))
}

// ---- Lookup (NF) ----

// NotFound reports an unknown gateway, payment or order.
func NotFound(entity string) *AppError {
	return New("NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Capabilities (UNS) ----

// UnsupportedOperation reports an optional capability absent on the resolved gateway.
func UnsupportedOperation(operation string) *AppError {
	return New("UNS_001", fmt.Sprintf("operation %q is not supported by this gateway", operation), http.StatusBadRequest)
}

// ---- Upstream providers (GW) ----

// GatewayError reports a provider-side rejection, keeping the provider's own code.
func GatewayError(provider, providerCode, message string) *AppError {
	return New("GW_001", fmt.Sprintf("%s: [%s] %s", provider, providerCode, message), http.StatusBadGateway)
}

// GatewayUnreachable reports a transport-level failure talking to a provider.
func GatewayUnreachable(provider string, err error) *AppError {
	return Wrap("GW_002", fmt.Sprintf("%s is unreachable", provider), http.StatusBadGateway, err)
}

// ---- Credential cipher (CRYPT) ----

// Decryption reports a corrupt or tampered secret envelope.
func Decryption(err error) *AppError {
	return Wrap("CRYPT_001", "secret value cannot be decrypted", http.StatusInternalServerError, err)
}

// Encryption reports a failure while sealing a secret.
func Encryption(err error) *AppError {
	return Wrap("CRYPT_002", "secret value cannot be encrypted", http.StatusInternalServerError, err)
}

// ---- Gateway configuration (CFG) ----

// Configuration reports an invalid provider configuration, raised at
// adapter construction so misconfiguration fails fast.
func Configuration(provider, field, reason string) *AppError {
	return New("CFG_001", fmt.Sprintf("invalid %s configuration: %s %s", provider, field, reason), http.StatusInternalServerError)
}

// ---- Conflicts (CONFLICT) ----

// Conflict reports a uniqueness or in-use violation.
func Conflict(message string) *AppError {
	return New("CONFLICT_001", message, http.StatusConflict)
}

// ---- Authorization (AUTH) ----

// Forbidden reports a caller acting on a resource it does not own.
func Forbidden(message string) *AppError {
	return New("AUTH_001", message, http.StatusForbidden)
}

// InvalidToken reports a missing or bad admin token.
func InvalidToken() *AppError {
	return New("AUTH_002", "invalid or expired token", http.StatusUnauthorized)
}

// RateLimited reports a caller exceeding its request budget.
func RateLimited() *AppError {
	return New("RATE_001", "rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System (SYS) ----

// InternalError wraps an unexpected internal failure.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "internal server error", http.StatusInternalServerError, err)
}
