// Package ttumderr implements the error taxonomy used across the driver:
// every throw carries a kind, the operation that raised it, and an
// optional detail string, wrapped so the original stack trace survives.
package ttumderr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure by cause, not by Go type. Callers branch on
// Kind, not on the concrete error value.
type Kind int

const (
	// KindConfiguration covers fatal setup problems: missing device
	// files, driver version too old, unknown TT_VISIBLE_DEVICES token.
	KindConfiguration Kind = iota
	// KindResourceExhausted covers TLB/DMA/hugepage allocation failures
	// that the caller may retry at a smaller size.
	KindResourceExhausted
	// KindTransport covers ioctl and pin-pages failures.
	KindTransport
	// KindHardwareHang is the distinguished "reset required" error.
	KindHardwareHang
	// KindTimeout covers ARC message, ARC core start, ethernet training.
	KindTimeout
	// KindInvalidArgument covers misaligned buffers, out-of-range
	// offsets, unknown coordinate systems.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindTransport:
		return "transport"
	case KindHardwareHang:
		return "hardware_hang"
	case KindTimeout:
		return "timeout"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Error is the structured error type threaded through the driver. Op names
// the component/operation (e.g. "pci.Open", "tlbwindow.Configure"); Detail
// is a single formatted substitution line, mirroring the original driver's
// "{}"-style single-substitution message.
type Error struct {
	Kind      Kind
	Op        string
	Detail    string
	Assertion string
	cause     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Assertion != "" {
		msg += fmt.Sprintf(" (assertion: %s)", e.Assertion)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// StackTrace exposes the captured backtrace when the wrapped cause came
// from github.com/pkg/errors (New/Wrap always produce one).
func (e *Error) StackTrace() errors.StackTrace {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	if st, ok := e.cause.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

// New creates an Error of the given kind, capturing a backtrace at the
// call site.
func New(kind Kind, op, detail string) error {
	return &Error{
		Kind:   kind,
		Op:     op,
		Detail: detail,
		cause:  errors.New(detail),
	}
}

// Wrap attaches kind/op context to an existing error without discarding
// its message, and records a backtrace at the Wrap call site (even when
// cause already carries one).
func Wrap(kind Kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{
		Kind:  kind,
		Op:    op,
		cause: errors.WithStack(cause),
	}
}

// Assertf reports a failed invariant as an error rather than panicking,
// matching Go convention over the original driver's throwing TT_ASSERT.
func Assertf(cond bool, kind Kind, op, format string, args ...any) error {
	if cond {
		return nil
	}
	detail := fmt.Sprintf(format, args...)
	return &Error{
		Kind:      kind,
		Op:        op,
		Assertion: detail,
		cause:     errors.New(detail),
	}
}

// IsHang reports whether err (or any error it wraps) is a hardware-hang
// error, the canary-driven "reset required" condition.
func IsHang(err error) bool {
	return kindIs(err, KindHardwareHang)
}

// IsTimeout reports whether err (or any error it wraps) is a timeout.
func IsTimeout(err error) bool {
	return kindIs(err, KindTimeout)
}

func kindIs(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			if e.Kind == k {
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}
