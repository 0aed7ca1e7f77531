// Package shard implements the shard server (C6) and shard-transfer client
// (C7): token-gated HTTP upload/download of shard bytes, and a
// websocket-based push/pull client with time-to-first-byte and
// time-to-write-acknowledgement deadlines.
package shard

import (
	"encoding/hex"
	"sync"
	"time"

	"gitlab.com/NebulousLabs/fastrand"
	"gitlab.com/NebulousLabs/threadgroup"

	"gitlab.com/shardnet/core/core"
)

// DefaultTokenTTL is how long an accepted token remains valid if the caller
// does not override it.
const DefaultTokenTTL = 30 * time.Minute

// tokenEntry is what accept() records for a single outstanding token.
type tokenEntry struct {
	hash    string
	contact string
	expires time.Time
}

// TokenTable is the shard server's admission table: accept/reject/authorize
// plus a periodic reaper that drops expired entries. All mutations are
// serialised under a single owner, per the spec's shared-resource rule.
type TokenTable struct {
	mu       sync.Mutex
	tokens   map[string]tokenEntry
	ttl      time.Duration
	tg       *threadgroup.ThreadGroup
	onExpire func(token string)
}

// NewTokenTable builds a TokenTable with the given ttl (DefaultTokenTTL if
// zero) and registers its reaper with tg.
func NewTokenTable(ttl time.Duration, tg *threadgroup.ThreadGroup) (*TokenTable, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	tt := &TokenTable{
		tokens: make(map[string]tokenEntry),
		ttl:    ttl,
		tg:     tg,
	}
	if err := tg.Launch(tt.reapLoop); err != nil {
		return nil, err
	}
	return tt, nil
}

// OnExpire registers a callback fired whenever the reaper drops a token for
// having outlived its ttl (not when Reject is called explicitly).
func (tt *TokenTable) OnExpire(fn func(token string)) {
	tt.mu.Lock()
	tt.onExpire = fn
	tt.mu.Unlock()
}

// Accept records a fresh token authorizing contact to transfer hash, valid
// for ttl. The token is 32 random bytes, hex-encoded.
func (tt *TokenTable) Accept(hash, contact string) string {
	token := fastrand.Bytes(32)
	tokenHex := hex.EncodeToString(token)

	tt.mu.Lock()
	tt.tokens[tokenHex] = tokenEntry{
		hash:    hash,
		contact: contact,
		expires: time.Now().Add(tt.ttl),
	}
	tt.mu.Unlock()

	return tokenHex
}

// Reject drops token immediately, one-shot: a rejected token never
// authorizes again even if presented before its ttl would have expired.
func (tt *TokenTable) Reject(token string) {
	tt.mu.Lock()
	delete(tt.tokens, token)
	tt.mu.Unlock()
}

// IsAuthorized reports whether token exists, has not expired, and was
// issued for hash. On failure it returns a precise core.AuthError reason.
func (tt *TokenTable) IsAuthorized(token, hash string) (string, error) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	entry, ok := tt.tokens[token]
	if !ok {
		return "", core.NewError(core.KindAuth, "token not accepted")
	}
	if time.Now().After(entry.expires) {
		delete(tt.tokens, token)
		return "", core.NewError(core.KindAuth, "token expired")
	}
	if entry.hash != hash {
		return "", core.NewError(core.KindAuth, "token does not authorize this hash")
	}
	return entry.contact, nil
}

func (tt *TokenTable) reapLoop() {
	ticker := time.NewTicker(tt.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-tt.tg.StopChan():
			return
		case <-ticker.C:
			tt.sweep()
		}
	}
}

func (tt *TokenTable) sweep() {
	now := time.Now()

	tt.mu.Lock()
	var expired []string
	for token, entry := range tt.tokens {
		if now.After(entry.expires) {
			expired = append(expired, token)
			delete(tt.tokens, token)
		}
	}
	fn := tt.onExpire
	tt.mu.Unlock()

	if fn != nil {
		for _, token := range expired {
			fn(token)
		}
	}
}
