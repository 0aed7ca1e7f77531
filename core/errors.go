// Package core defines the error kinds and fault-injection hooks shared by
// every component of the shard lifecycle core. Components return these
// typed errors rather than bare strings so that callers - in particular the
// protocol layer mapping errors onto RPC envelopes - can branch on kind
// without string matching.
package core

import (
	"errors"
	"fmt"
)

// Kind identifies which of the seven error categories an error belongs to.
type Kind int

const (
	// KindValidation covers schema violations, bad hex, size mismatches,
	// and malformed proofs. Non-retryable; the caller is wrong.
	KindValidation Kind = iota
	// KindAuth covers unknown/expired tokens, wrong identity for a
	// contract, and unauthorized retrieval. Non-retryable without a new
	// handshake.
	KindAuth
	// KindIntegrity covers hash mismatches, size overruns, and Merkle
	// proof failures. Terminal for the affected shard.
	KindIntegrity
	// KindTimeout covers TTFB, TTWA, and RPC response timeouts.
	// Retryable against a different mirror.
	KindTimeout
	// KindNotFound covers a missing item, contract, or shard. Retryable
	// only via a different counterparty.
	KindNotFound
	// KindCapacity covers a manager refusing a save because it is at
	// capacity. Durable until capacity frees up.
	KindCapacity
	// KindTransport covers socket resets, early closes, and DNS
	// failures. Retryable.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindIntegrity:
		return "integrity"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	case KindCapacity:
		return "capacity"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a typed error carrying one of the seven kinds plus a message.
// It composes with gitlab.com/NebulousLabs/errors so that ComposeErrors and
// Extend keep working on it the way they do on plain errors.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

// NewError builds an Error of the given kind.
func NewError(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing error,
// preserving it for errors.Unwrap/errors.As chains.
func Wrap(k Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.As/errors.Is see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, core.ValidationError) against the kind sentinels
// below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values for errors.Is comparisons against a bare kind, with no
// message of their own.
var (
	ValidationError = &Error{Kind: KindValidation}
	AuthError       = &Error{Kind: KindAuth}
	IntegrityError  = &Error{Kind: KindIntegrity}
	TimeoutError    = &Error{Kind: KindTimeout}
	NotFoundError   = &Error{Kind: KindNotFound}
	CapacityError   = &Error{Kind: KindCapacity}
	TransportError  = &Error{Kind: KindTransport}
)

// IsKind reports whether err is a *core.Error of kind k, unwrapping
// composed errors along the way.
func IsKind(err error, k Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == k
	}
	return false
}
