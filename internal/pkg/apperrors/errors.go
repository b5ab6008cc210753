// internal/pkg/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers. Handlers and tests branch on the
// kind and code, never on message text.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindGateway       Kind = "gateway"
	KindInternal      Kind = "internal"
)

// Machine-readable detail codes carried alongside the kind.
const (
	CodeEmptyCart          = "empty_cart"
	CodeInsufficientStock  = "insufficient_stock"
	CodeCouponInactive     = "coupon_inactive"
	CodeCouponNotStarted   = "coupon_not_started"
	CodeCouponExpired      = "coupon_expired"
	CodeCouponUsageCap     = "coupon_usage_cap"
	CodeCouponMinOrder     = "coupon_min_order"
	CodeCouponExhausted    = "coupon_exhausted"
	CodeInvalidTransition  = "invalid_transition"
	CodeUnsupportedPayment = "unsupported_payment_method"
	CodeSignatureMismatch  = "signature_mismatch"
	CodePaymentNotCaptured = "payment_not_captured"
	CodeAmountMismatch     = "amount_mismatch"
	CodePaymentSettled     = "payment_already_settled"
	CodeGatewayOrderMixup  = "gateway_order_mismatch"
)

// Error is the domain error type returned by services.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or missing input.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// NotFound reports an absent resource by name ("order", "address", ...).
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Code: resource + "_not_found", Message: resource + " not found"}
}

// Conflict reports a state conflict: insufficient stock, coupon caps,
// illegal lifecycle transitions.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Authorization reports an ownership or role failure.
func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Code: "forbidden", Message: message}
}

// Gateway reports a payment-provider failure; the cause is preserved for logs.
func Gateway(message string, err error) *Error {
	return &Error{Kind: KindGateway, Code: "gateway_error", Message: message, Err: err}
}

// Internal wraps everything not otherwise classified.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the detail code of err, or "" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsNotFound(err error) bool      { return IsKind(err, KindNotFound) }
func IsConflict(err error) bool      { return IsKind(err, KindConflict) }
func IsValidation(err error) bool    { return IsKind(err, KindValidation) }
func IsAuthorization(err error) bool { return IsKind(err, KindAuthorization) }
func IsGateway(err error) bool       { return IsKind(err, KindGateway) }

// HTTPStatus maps an error to the response status for handlers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
