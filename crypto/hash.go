package crypto

// hash.go supplies the hashing primitives used throughout the shard
// lifecycle core. Every hash in the protocol - data hashes, node
// fingerprints, Merkle leaves - is RIPEMD160(SHA256(x)), so that is the only
// supported algorithm; there is no flexibility here the way there is in a
// chain-agnostic library, because the wire format depends on it.

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/ripemd160"
)

const (
	// HashSize is the length, in bytes, of a Hash.
	HashSize = 20
)

type (
	// Hash is a RIPEMD160(SHA256(x)) digest.
	Hash [HashSize]byte

	// HashSlice is used for sorting hashes.
	HashSlice []Hash
)

var (
	// ErrHashWrongLen is returned when decoding a hash of the wrong length.
	ErrHashWrongLen = errors.New("encoded value has the wrong length to be a hash")
)

// HashBytes returns RIPEMD160(SHA256(data)).
func HashBytes(data []byte) (h Hash) {
	sum := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sum[:])
	copy(h[:], r.Sum(nil))
	return
}

// HashAll concatenates the byte representation of each object and hashes the
// result with HashBytes.
func HashAll(objs ...[]byte) Hash {
	var b []byte
	for _, obj := range objs {
		b = append(b, obj...)
	}
	return HashBytes(b)
}

// These methods implement sort.Interface, allowing hashes to be sorted.
func (hs HashSlice) Len() int           { return len(hs) }
func (hs HashSlice) Less(i, j int) bool { return bytes.Compare(hs[i][:], hs[j][:]) < 0 }
func (hs HashSlice) Swap(i, j int)      { hs[i], hs[j] = hs[j], hs[i] }

// String prints the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalJSON marshals a hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes the hex-string JSON encoding of a hash.
func (h *Hash) UnmarshalJSON(b []byte) error {
	if len(b) != HashSize*2+2 {
		return ErrHashWrongLen
	}
	hBytes, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return errors.New("could not unmarshal crypto.Hash: " + err.Error())
	}
	copy(h[:], hBytes)
	return nil
}

// StreamHasher incrementally computes RIPEMD160(SHA256(x)) over bytes
// arriving in multiple writes, so a caller streaming shard bytes off a
// socket need not buffer them twice just to produce the final hash.
type StreamHasher struct {
	sha256 interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
	}
}

// NewStreamHasher builds an empty StreamHasher.
func NewStreamHasher() *StreamHasher {
	return &StreamHasher{sha256: sha256.New()}
}

// Write feeds p into the running hash.
func (s *StreamHasher) Write(p []byte) {
	s.sha256.Write(p)
}

// Sum finalizes and returns RIPEMD160(SHA256(everything written so far)).
func (s *StreamHasher) Sum() (h Hash) {
	r := ripemd160.New()
	r.Write(s.sha256.Sum(nil))
	copy(h[:], r.Sum(nil))
	return
}

// HashFromString parses a lowercase hex-encoded hash.
func HashFromString(s string) (h Hash, err error) {
	if len(s) != HashSize*2 {
		return h, ErrHashWrongLen
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}
