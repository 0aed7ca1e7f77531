package core

import (
	"errors"
	"testing"
)

// TestErrorKind checks that IsKind recognizes an error built by NewError
// as its own kind, and rejects a different kind.
func TestErrorKind(t *testing.T) {
	err := NewError(KindNotFound, "no item for hash %s", "deadbeef")
	if !IsKind(err, KindNotFound) {
		t.Fatal("expected KindNotFound")
	}
	if IsKind(err, KindAuth) {
		t.Fatal("did not expect KindAuth")
	}
}

// TestErrorWrap checks that Wrap preserves the underlying cause for
// errors.Unwrap.
func TestErrorWrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindTransport, cause, "writing shard")
	if !errors.Is(err, err) {
		t.Fatal("error does not equal itself")
	}
	if errors.Unwrap(err) != cause {
		t.Fatal("Unwrap did not return the wrapped cause")
	}
}

// TestErrorIsSentinel checks that errors.Is matches the bare kind sentinels
// regardless of message.
func TestErrorIsSentinel(t *testing.T) {
	err := NewError(KindCapacity, "storage capacity reached")
	if !errors.Is(err, CapacityError) {
		t.Fatal("expected errors.Is to match the capacity sentinel")
	}
	if errors.Is(err, AuthError) {
		t.Fatal("did not expect errors.Is to match the auth sentinel")
	}
}

// TestDisruptDefault checks that ProdDependencies never disrupts.
func TestDisruptDefault(t *testing.T) {
	var d Dependencies = ProdDependencies{}
	if d.Disrupt("anything") {
		t.Fatal("ProdDependencies should never disrupt")
	}
}
