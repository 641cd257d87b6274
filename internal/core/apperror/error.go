// Package apperror provides structured error handling for the stock ledger.
// Every business failure surfaces as an AppError with a machine-readable code
// so the presentation layer can map it without string matching.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Business rule violations (422)
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"

	// Concurrency (409)
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"

	// Ledger corruption (500) - Stock.Quantity diverged from the lot sum.
	// Never auto-corrected; the transaction that detects it must fail.
	CodeReconciliationViolation = "RECONCILIATION_VIOLATION"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeDuplicate = "DUPLICATE_ENTRY"
)

// AppError is the standard error type for the service.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400).
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404).
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInvalidTransition is returned when a document action is not allowed
// from its current status. Not retryable.
func NewInvalidTransition(docType, action string, fromStatus any) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("action %q is not allowed for %s in its current status", action, docType),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"document_type": docType,
			"action":        action,
			"from_status":   fromStatus,
		},
	}
}

// NewInsufficientStock is returned when an issue or transfer requests more
// than the eligible available quantity. Never partially committed.
func NewInsufficientStock(materialID string, requested, available float64) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"material_id": materialID,
			"requested":   requested,
			"available":   available,
		},
	}
}

// NewConcurrencyConflict is returned when an optimistic version check fails.
// Callers retry internally up to a bound before surfacing it.
func NewConcurrencyConflict(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrencyConflict,
		Message:    "record was modified concurrently, please retry",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewReconciliationViolation signals that Stock.Quantity no longer equals the
// sum of its lots. This is a ledger corruption: fail loudly, never auto-fix.
func NewReconciliationViolation(warehouseID, materialID string, stockQty, lotSum float64) *AppError {
	return &AppError{
		Code:       CodeReconciliationViolation,
		Message:    "stock quantity does not reconcile with lot quantities",
		HTTPStatus: http.StatusInternalServerError,
		Details: map[string]any{
			"warehouse_id": warehouseID,
			"material_id":  materialID,
			"stock_qty":    stockQty,
			"lot_sum":      lotSum,
		},
	}
}

// NewInternal creates an internal server error (hides details from client).
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401).
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403).
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewDuplicate creates a duplicate entry error (409).
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helpers ---

// AsAppError extracts AppError from the error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns the appropriate HTTP status for any error.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode checks whether err carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound.
func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }

// IsConcurrencyConflict checks if error is CodeConcurrencyConflict.
func IsConcurrencyConflict(err error) bool { return IsCode(err, CodeConcurrencyConflict) }

// IsInsufficientStock checks if error is CodeInsufficientStock.
func IsInsufficientStock(err error) bool { return IsCode(err, CodeInsufficientStock) }

// IsInvalidTransition checks if error is CodeInvalidTransition.
func IsInvalidTransition(err error) bool { return IsCode(err, CodeInvalidTransition) }
