package apperr

import (
	"errors"
	"fmt"
	"maps"
)

// Kind groups error codes into the categories surfaced to callers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindExternal:
		return "external"
	default:
		return "internal"
	}
}

// Code is a machine readable error cause.
type Code string

const (
	CodeInvalidInput         Code = "invalid_input"
	CodeEmptyCart            Code = "empty_cart"
	CodeProductNotFound      Code = "product_not_found"
	CodeProductInactive      Code = "product_inactive"
	CodeInsufficientStock    Code = "insufficient_stock"
	CodeCartItemNotFound     Code = "cart_item_not_found"
	CodeOrderNotFound        Code = "order_not_found"
	CodePaymentNotFound      Code = "payment_not_found"
	CodeForbidden            Code = "forbidden"
	CodeOrderNotPending      Code = "order_not_pending"
	CodeIllegalTransition    Code = "illegal_transition"
	CodeAmountMismatch       Code = "amount_mismatch"
	CodeGatewayRejected      Code = "gateway_rejected"
	CodeGatewayUnavailable   Code = "gateway_unavailable"
	CodeGatewayMisconfigured Code = "gateway_misconfigured"
	CodeInternal             Code = "internal"
)

var codeKinds = map[Code]Kind{
	CodeInvalidInput:         KindValidation,
	CodeEmptyCart:            KindConflict,
	CodeProductNotFound:      KindNotFound,
	CodeProductInactive:      KindConflict,
	CodeInsufficientStock:    KindConflict,
	CodeCartItemNotFound:     KindNotFound,
	CodeOrderNotFound:        KindNotFound,
	CodePaymentNotFound:      KindNotFound,
	CodeForbidden:            KindForbidden,
	CodeOrderNotPending:      KindConflict,
	CodeIllegalTransition:    KindConflict,
	CodeAmountMismatch:       KindConflict,
	CodeGatewayRejected:      KindExternal,
	CodeGatewayUnavailable:   KindExternal,
	CodeGatewayMisconfigured: KindExternal,
	CodeInternal:             KindInternal,
}

// Sentinels for errors.Is checks; matching is by code only.
var (
	ErrInvalidInput         = &Error{Code: CodeInvalidInput}
	ErrEmptyCart            = &Error{Code: CodeEmptyCart}
	ErrProductNotFound      = &Error{Code: CodeProductNotFound}
	ErrProductInactive      = &Error{Code: CodeProductInactive}
	ErrInsufficientStock    = &Error{Code: CodeInsufficientStock}
	ErrCartItemNotFound     = &Error{Code: CodeCartItemNotFound}
	ErrOrderNotFound        = &Error{Code: CodeOrderNotFound}
	ErrPaymentNotFound      = &Error{Code: CodePaymentNotFound}
	ErrForbidden            = &Error{Code: CodeForbidden}
	ErrOrderNotPending      = &Error{Code: CodeOrderNotPending}
	ErrIllegalTransition    = &Error{Code: CodeIllegalTransition}
	ErrAmountMismatch       = &Error{Code: CodeAmountMismatch}
	ErrGatewayRejected      = &Error{Code: CodeGatewayRejected}
	ErrGatewayUnavailable   = &Error{Code: CodeGatewayUnavailable}
	ErrGatewayMisconfigured = &Error{Code: CodeGatewayMisconfigured}
)

// Error is the structured failure returned by the core services.
type Error struct {
	Op      string
	Code    Code
	Message string
	// Status overrides the HTTP status derived from Kind, e.g. to relay a
	// gateway response code.
	Status  int
	Details map[string]any
	Err     error
}

// New builds an error for code with a human readable message.
func New(code Code, message string) *Error {
	if message == "" {
		message = string(code)
	}
	return &Error{Code: code, Message: message}
}

// Newf is New with fmt formatting.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches cause to a new error for code.
func Wrap(code Code, err error, message string) *Error {
	e := New(code, message)
	e.Err = err
	return e
}

// Internal wraps an unexpected failure raised by op.
func Internal(op string, err error) *Error {
	e := Wrap(CodeInternal, err, "internal error")
	e.Op = op
	return e
}

// OrInternal passes *Error values through unchanged and wraps anything else
// as an internal failure of op.
func OrInternal(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Internal(op, err)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Kind reports the category of the error code.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	if k, ok := codeKinds[e.Code]; ok {
		return k
	}
	return KindInternal
}

// WithOp records the failing operation.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithStatus overrides the surfaced HTTP status.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithDetails merges structured context into the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	if len(details) == 0 {
		return e
	}
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	maps.Copy(e.Details, details)
	return e
}

// As extracts an *Error from err. Errors that are not *Error are reported as
// internal failures.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("", err)
}
