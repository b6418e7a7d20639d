package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error represents an application error
type Error struct {
	Code    int               `json:"code"`
	Kind    string            `json:"kind,omitempty"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	for _, k := range []string{"item_id", "sku", "qty", "available"} {
		if v, ok := e.Details[k]; ok {
			msg += fmt.Sprintf(" %s=%s", k, v)
		}
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind == "" {
		return false
	}
	return t.Kind == e.Kind
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// WithDetail returns a copy of e with an extra detail entry.
func (e *Error) WithDetail(key, value string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Wrap returns a copy of e carrying err.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// Withf returns a copy of e with a formatted message.
func (e *Error) Withf(format string, args ...interface{}) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func newKind(code int, kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

// Validation errors. Rejected before any mutation.
var (
	ErrInvalidQuantity       = newKind(http.StatusUnprocessableEntity, "InvalidQuantity", "Invalid quantity")
	ErrInvalidAmount         = newKind(http.StatusUnprocessableEntity, "InvalidAmount", "Invalid amount")
	ErrQuoteEmpty            = newKind(http.StatusUnprocessableEntity, "QuoteEmpty", "Quote has no items")
	ErrQuoteAlreadyConverted = newKind(http.StatusConflict, "QuoteAlreadyConverted", "Quote already converted to an order")
	ErrNonShippableItem      = newKind(http.StatusUnprocessableEntity, "NonShippableItem", "Item cannot be shipped")
	ErrOverRefund            = newKind(http.StatusUnprocessableEntity, "OverRefund", "Refund exceeds refundable amount")
	ErrValidation            = newKind(http.StatusBadRequest, "Validation", "Validation error")
)

// Consistency errors. The caller retries from fresh order state.
var (
	ErrConcurrentModification = newKind(http.StatusConflict, "ConcurrentModification", "Order was modified concurrently")
	ErrDuplicateRequest       = newKind(http.StatusConflict, "DuplicateRequest", "Document already created for request")
	ErrInvalidStateTransition = newKind(http.StatusConflict, "InvalidStateTransition", "Operation not allowed in current state")
)

var (
	ErrMissingExchangeRate = newKind(http.StatusUnprocessableEntity, "MissingExchangeRate", "Missing exchange rate")
	ErrNotFound            = newKind(http.StatusNotFound, "NotFound", "Not found")
	ErrStorage             = newKind(http.StatusInternalServerError, "Storage", "Internal server error")
	ErrUnauthorized        = newKind(http.StatusUnauthorized, "Unauthorized", "Unauthorized")
	ErrForbidden           = newKind(http.StatusForbidden, "Forbidden", "Forbidden")
)

// InvalidQuantity builds an InvalidQuantity error naming the offending item.
func InvalidQuantity(itemID, qty, available, reason string) *Error {
	e := ErrInvalidQuantity.Withf("Invalid quantity: %s", reason)
	e = e.WithDetail("item_id", itemID).WithDetail("qty", qty)
	if available != "" {
		e = e.WithDetail("available", available)
	}
	return e
}

// NotFound builds a NotFound error for an entity.
func NotFound(entity, id string) *Error {
	return ErrNotFound.Withf("%s not found", entity).WithDetail("id", id)
}

// Storage wraps a persistence failure. The message stays generic.
func Storage(err error) *Error {
	return ErrStorage.Wrap(err)
}

// As extracts an *Error from err, wrapping unknown errors as Storage.
func As(err error) *Error {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Storage(err)
}

// ErrorMiddleware renders the last error attached to the gin context.
func ErrorMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		appErr := As(err)

		if appErr.Code >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString("request_id")),
				zap.Error(err),
			)
			c.JSON(appErr.Code, gin.H{"code": appErr.Code, "kind": appErr.Kind, "message": appErr.Message})
			return
		}
		c.JSON(appErr.Code, appErr)
	}
}
