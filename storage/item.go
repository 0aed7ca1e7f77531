// Package storage implements the per-node persistence layer: a key/value
// adapter over contract metadata and shard bytes (C3), a manager that adds
// merge-on-save semantics, capacity accounting, and reaping on top of an
// adapter (C4), and the in-memory storage item those two exchange (C5).
package storage

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/ripemd160"

	"gitlab.com/shardnet/core/contract"
	"gitlab.com/shardnet/core/crypto"
)

// Item binds a shard hash to every contract and audit record a node holds
// for it, one per counterparty.
type Item struct {
	Hash string `json:"hash"`

	// ShardKey is the secondary key the shard bytes are stored under,
	// RIPEMD160(hash) in hex. It is recorded on the item rather than
	// recomputed so a future change to the derivation rule cannot orphan
	// already-stored shards.
	ShardKey string `json:"shard_key"`

	Contracts  map[string]*contract.Contract `json:"contracts"`
	Trees      map[string][]crypto.Hash      `json:"trees"`
	Challenges map[string][]string           `json:"challenges"`
	Meta       map[string]interface{}        `json:"meta"`

	// HDKeys maps a renter_hd_key hex string to the counterparty identity
	// it belongs to, so GetContract can resolve a contact presented as an
	// extended key rather than a nodeID.
	HDKeys map[string]string `json:"hd_keys"`

	// Modified is the last-write time, in milliseconds since the epoch.
	Modified int64 `json:"modified"`
}

// NewItem builds an empty item for hash.
func NewItem(hash string) *Item {
	return &Item{
		Hash:       hash,
		ShardKey:   ShardKeyFor(hash),
		Contracts:  make(map[string]*contract.Contract),
		Trees:      make(map[string][]crypto.Hash),
		Challenges: make(map[string][]string),
		Meta:       make(map[string]interface{}),
		HDKeys:     make(map[string]string),
	}
}

// ShardKeyFor computes the secondary key shard bytes are stored under: a
// single RIPEMD160 pass over hash's hex string, not crypto.HashBytes's
// RIPEMD160(SHA256(x)) - the derivation used for data hashes and
// fingerprints throughout the rest of the protocol does not apply here.
func ShardKeyFor(hash string) string {
	r := ripemd160.New()
	r.Write([]byte(hash))
	return hex.EncodeToString(r.Sum(nil))
}

// GetContract resolves contact - a nodeID, or an extended public key
// recorded in HDKeys - to the contract it names. It returns false when
// neither matches, the spec's "not authorized" outcome.
func (it *Item) GetContract(contact string) (*contract.Contract, bool) {
	if c, ok := it.Contracts[contact]; ok {
		return c, true
	}
	if id, ok := it.HDKeys[contact]; ok {
		if c, ok := it.Contracts[id]; ok {
			return c, true
		}
	}
	return nil, false
}

// IsValidKey reports whether key is a well-formed 40-character lowercase
// hex adapter key.
func IsValidKey(key string) bool {
	if len(key) != 40 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil && key == strings.ToLower(key)
}

// contractComplete reports whether a single contract is complete, per
// contract.Contract.IsComplete.
func contractComplete(c *contract.Contract) bool {
	return c != nil && c.IsComplete()
}
