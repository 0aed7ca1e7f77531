package shard

import (
	"testing"
	"time"

	"gitlab.com/NebulousLabs/threadgroup"

	"gitlab.com/shardnet/core/core"
)

func newTestTokenTable(t *testing.T, ttl time.Duration) (*TokenTable, *threadgroup.ThreadGroup) {
	t.Helper()
	tg := new(threadgroup.ThreadGroup)
	tt, err := NewTokenTable(ttl, tg)
	if err != nil {
		t.Fatalf("NewTokenTable: %v", err)
	}
	return tt, tg
}

func TestTokenTableAcceptAndAuthorize(t *testing.T) {
	tt, tg := newTestTokenTable(t, time.Hour)
	defer tg.Stop()

	token := tt.Accept("a000000000000000000000000000000000000000", "renter1")
	if token == "" {
		t.Fatal("Accept returned empty token")
	}

	contact, err := tt.IsAuthorized(token, "a000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if contact != "renter1" {
		t.Fatalf("contact = %q, want renter1", contact)
	}
}

func TestTokenTableWrongHashRejected(t *testing.T) {
	tt, tg := newTestTokenTable(t, time.Hour)
	defer tg.Stop()

	token := tt.Accept("a000000000000000000000000000000000000000", "renter1")
	_, err := tt.IsAuthorized(token, "b000000000000000000000000000000000000000")
	if !core.IsKind(err, core.KindAuth) {
		t.Fatalf("expected KindAuth, got %v", err)
	}
}

func TestTokenTableUnknownTokenRejected(t *testing.T) {
	tt, tg := newTestTokenTable(t, time.Hour)
	defer tg.Stop()

	_, err := tt.IsAuthorized("doesnotexist", "a000000000000000000000000000000000000000")
	if !core.IsKind(err, core.KindAuth) {
		t.Fatalf("expected KindAuth, got %v", err)
	}
}

func TestTokenTableReject(t *testing.T) {
	tt, tg := newTestTokenTable(t, time.Hour)
	defer tg.Stop()

	token := tt.Accept("a000000000000000000000000000000000000000", "renter1")
	tt.Reject(token)

	if _, err := tt.IsAuthorized(token, "a000000000000000000000000000000000000000"); err == nil {
		t.Fatal("expected rejected token to stay unauthorized")
	}
}

func TestTokenTableExpires(t *testing.T) {
	tt, tg := newTestTokenTable(t, time.Millisecond)
	defer tg.Stop()

	token := tt.Accept("a000000000000000000000000000000000000000", "renter1")
	time.Sleep(5 * time.Millisecond)

	if _, err := tt.IsAuthorized(token, "a000000000000000000000000000000000000000"); !core.IsKind(err, core.KindAuth) {
		t.Fatalf("expected expired token to be unauthorized, got %v", err)
	}
}

func TestTokenTableSweepFiresOnExpire(t *testing.T) {
	tt, tg := newTestTokenTable(t, 5*time.Millisecond)
	defer tg.Stop()

	expired := make(chan string, 1)
	tt.OnExpire(func(token string) { expired <- token })

	token := tt.Accept("a000000000000000000000000000000000000000", "renter1")

	select {
	case got := <-expired:
		if got != token {
			t.Fatalf("expired token = %q, want %q", got, token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never fired onExpire")
	}
}
