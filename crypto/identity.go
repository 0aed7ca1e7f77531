package crypto

// identity.go implements node identities and contract signatures. A node
// identity is a secp256k1 keypair; the node fingerprint is
// RIPEMD160(SHA256(compressed pubkey)). Signatures are 65-byte bitcoin-style
// compact recoverable signatures, base64 encoded on the wire.
//
// HD (hierarchical-deterministic) derivation is supported for the narrow
// case the contract schema requires: deriving a non-hardened child public
// key from a renter's extended public key, so that a renter signing with a
// derived key can still be verified without transmitting the child key
// itself.

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

const (
	// SignatureSize is the length, in bytes, of a compact recoverable
	// signature.
	SignatureSize = 65

	// HardenedIndexFloor is the first index considered "hardened" in BIP32
	// child derivation. Contract renter_hd_index values must stay below it.
	HardenedIndexFloor = uint32(1) << 31
)

var (
	// ErrInvalidSignature is returned when a compact signature cannot be
	// recovered or does not match the claimed identity.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrHardenedIndex is returned when a renter_hd_index is hardened.
	ErrHardenedIndex = errors.New("renter_hd_index must not be hardened")
)

type (
	// SecretKey is a node's private signing key.
	SecretKey struct {
		key *btcec.PrivateKey
	}

	// PublicKey is a node's public signing key, always stored compressed.
	PublicKey struct {
		key *btcec.PublicKey
	}

	// ExtendedPublicKey is a BIP32-style extended public key: a public key
	// plus the chain code needed to derive non-hardened children.
	ExtendedPublicKey struct {
		PublicKey
		ChainCode [32]byte
	}
)

// GenerateKeyPair creates a new random secp256k1 keypair.
func GenerateKeyPair() (SecretKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return SecretKey{}, err
	}
	return SecretKey{key: k}, nil
}

// SecretKeyFromBytes parses a 32-byte raw secret key.
func SecretKeyFromBytes(b []byte) (SecretKey, error) {
	if len(b) != 32 {
		return SecretKey{}, errors.New("secret key must be 32 bytes")
	}
	k := secp256k1PrivKeyFromBytes(b)
	return SecretKey{key: k}, nil
}

func secp256k1PrivKeyFromBytes(b []byte) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv
}

// Bytes returns the raw 32-byte secret key.
func (sk SecretKey) Bytes() []byte {
	return sk.key.Serialize()
}

// PublicKey returns the compressed public key corresponding to sk.
func (sk SecretKey) PublicKey() PublicKey {
	return PublicKey{key: sk.key.PubKey()}
}

// Sign produces a 65-byte compact recoverable signature of hash.
func (sk SecretKey) Sign(hash Hash) (sig [SignatureSize]byte, err error) {
	full := ecdsa.SignCompact(sk.key, hash[:], true)
	if len(full) != SignatureSize {
		return sig, errors.New("unexpected compact signature length")
	}
	copy(sig[:], full)
	return sig, nil
}

// SignBase64 signs hash and base64-encodes the result, as stored on the
// wire in a contract's *_signature field.
func (sk SecretKey) SignBase64(hash Hash) (string, error) {
	sig, err := sk.Sign(hash)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig[:]), nil
}

// Bytes returns the compressed (33-byte) public key.
func (pk PublicKey) Bytes() []byte {
	return pk.key.SerializeCompressed()
}

// PublicKeyFromBytes parses a compressed (33-byte) public key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{key: key}, nil
}

// Fingerprint returns the node identity: RIPEMD160(SHA256(compressed pubkey)).
func (pk PublicKey) Fingerprint() Hash {
	return HashBytes(pk.Bytes())
}

// RecoverPublicKey recovers the public key used to produce sig over hash.
func RecoverPublicKey(hash Hash, sigB64 string) (PublicKey, error) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return PublicKey{}, ErrInvalidSignature
	}
	if len(sig) != SignatureSize {
		return PublicKey{}, ErrInvalidSignature
	}
	pub, _, err := ecdsa.RecoverCompact(sig, hash[:])
	if err != nil {
		return PublicKey{}, ErrInvalidSignature
	}
	return PublicKey{key: pub}, nil
}

// VerifySignature recovers the signer of sigB64 over hash and checks that
// its fingerprint matches identity.
func VerifySignature(hash Hash, sigB64 string, identity Hash) bool {
	pk, err := RecoverPublicKey(hash, sigB64)
	if err != nil {
		return false
	}
	return pk.Fingerprint() == identity
}

// DeriveChild derives the non-hardened child public key at index from an
// extended public key, per BIP32's public-parent-public-child (CKDpub)
// derivation rule.
func (epk ExtendedPublicKey) DeriveChild(index uint32) (PublicKey, error) {
	if index >= HardenedIndexFloor {
		return PublicKey{}, ErrHardenedIndex
	}

	var indexBytes [4]byte
	binary.BigEndian.PutUint32(indexBytes[:], index)

	mac := hmac.New(sha512.New, epk.ChainCode[:])
	mac.Write(epk.PublicKey.Bytes())
	mac.Write(indexBytes[:])
	I := mac.Sum(nil)
	IL, _ := I[:32], I[32:]

	il := new(big.Int).SetBytes(IL)
	curve := btcec.S256()
	if il.Cmp(curve.N) >= 0 {
		return PublicKey{}, errors.New("invalid derivation: IL out of range")
	}

	ilX, ilY := curve.ScalarBaseMult(IL)
	parentX, parentY := epk.PublicKey.key.X(), epk.PublicKey.key.Y()
	childX, childY := curve.Add(ilX, ilY, parentX, parentY)

	childKey := btcec.NewPublicKey(bigIntToFieldVal(childX), bigIntToFieldVal(childY))
	return PublicKey{key: childKey}, nil
}

// bigIntToFieldVal converts a big.Int coordinate, as returned by the
// elliptic.Curve interface, into the FieldVal representation btcec's
// public key constructor expects.
func bigIntToFieldVal(n *big.Int) *btcec.FieldVal {
	var f btcec.FieldVal
	buf := n.Bytes()
	var padded [32]byte
	copy(padded[32-len(buf):], buf)
	f.SetByteSlice(padded[:])
	return &f
}

// VerifyHD recovers the signer of sigB64 over hash and checks that it
// matches the child key derived from epk at index.
func VerifyHD(hash Hash, sigB64 string, epk ExtendedPublicKey, index uint32) bool {
	child, err := epk.DeriveChild(index)
	if err != nil {
		return false
	}
	pk, err := RecoverPublicKey(hash, sigB64)
	if err != nil {
		return false
	}
	return pk.key.IsEqual(child.key)
}
