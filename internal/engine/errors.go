package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies request-level failures. Each kind has its own
// remediation: the first three are client-correctable and happen before
// any side effect, the last two happen mid-dispatch.
type Kind string

const (
	KindInvalidRequest   Kind = "InvalidRequest"
	KindCallerNotFound   Kind = "CallerNotFound"
	KindPermissionDenied Kind = "PermissionDenied"
	KindGatewayFault     Kind = "GatewayFault"
	KindTimeout          Kind = "Timeout"
)

// Sentinels for errors.Is checks against an *Error of the same kind.
var (
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrCallerNotFound   = &Error{Kind: KindCallerNotFound}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrGatewayFault     = &Error{Kind: KindGatewayFault}
	ErrTimeout          = &Error{Kind: KindTimeout}
)

// Error is a classified dispatch failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 3)
	parts = append(parts, string(e.Kind))
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the Kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// gatewayError classifies a failed gateway call. A dispatch whose deadline
// expired is reported as a timeout rather than a provider fault.
func gatewayError(ctx context.Context, err error, format string, args ...any) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, err, format, args...)
	}
	return newError(KindGatewayFault, err, format, args...)
}
