package crypto

import (
	"testing"
)

// TestSignVerifyRoundTrip checks that a signature produced by a secret key
// verifies against the corresponding identity, and fails against any other.
func TestSignVerifyRoundTrip(t *testing.T) {
	sk, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	pk := sk.PublicKey()
	identity := pk.Fingerprint()

	h := HashBytes([]byte("contract body"))
	sigB64, err := sk.SignBase64(h)
	if err != nil {
		t.Fatal(err)
	}

	if !VerifySignature(h, sigB64, identity) {
		t.Fatal("signature did not verify against its own identity")
	}

	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if VerifySignature(h, sigB64, other.PublicKey().Fingerprint()) {
		t.Fatal("signature verified against the wrong identity")
	}

	wrongHash := HashBytes([]byte("different body"))
	if VerifySignature(wrongHash, sigB64, identity) {
		t.Fatal("signature verified over the wrong hash")
	}
}

// TestRecoverPublicKey checks that recovery returns the signer's exact
// public key bytes.
func TestRecoverPublicKey(t *testing.T) {
	sk, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	h := HashBytes([]byte("recover me"))
	sigB64, err := sk.SignBase64(h)
	if err != nil {
		t.Fatal(err)
	}
	recovered, err := RecoverPublicKey(h, sigB64)
	if err != nil {
		t.Fatal(err)
	}
	want := sk.PublicKey().Bytes()
	got := recovered.Bytes()
	if len(want) != len(got) {
		t.Fatalf("recovered key has wrong length: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatal("recovered public key does not match signer")
		}
	}
}

// TestRecoverPublicKeyBadSignature checks that malformed signatures are
// rejected rather than causing a panic.
func TestRecoverPublicKeyBadSignature(t *testing.T) {
	h := HashBytes([]byte("whatever"))
	if _, err := RecoverPublicKey(h, "not-base64!!"); err != ErrInvalidSignature {
		t.Fatal("expected ErrInvalidSignature for malformed base64")
	}
	if _, err := RecoverPublicKey(h, "AAAA"); err != ErrInvalidSignature {
		t.Fatal("expected ErrInvalidSignature for wrong-length signature")
	}
}

// TestDeriveChildHardenedRejected checks that hardened indices are refused,
// per the contract schema's renter_hd_index constraint.
func TestDeriveChildHardenedRejected(t *testing.T) {
	sk, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	epk := ExtendedPublicKey{PublicKey: sk.PublicKey()}
	if _, err := epk.DeriveChild(HardenedIndexFloor); err != ErrHardenedIndex {
		t.Fatal("expected ErrHardenedIndex for a hardened index")
	}
	if _, err := epk.DeriveChild(HardenedIndexFloor + 1); err != ErrHardenedIndex {
		t.Fatal("expected ErrHardenedIndex for a hardened index")
	}
}

// TestDeriveChildDeterministic checks that deriving the same index twice
// yields the same child key, and that different indices diverge.
func TestDeriveChildDeterministic(t *testing.T) {
	sk, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	epk := ExtendedPublicKey{PublicKey: sk.PublicKey()}

	c1, err := epk.DeriveChild(7)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := epk.DeriveChild(7)
	if err != nil {
		t.Fatal(err)
	}
	if !c1.key.IsEqual(c2.key) {
		t.Fatal("deriving the same index twice produced different keys")
	}

	c3, err := epk.DeriveChild(8)
	if err != nil {
		t.Fatal(err)
	}
	if c1.key.IsEqual(c3.key) {
		t.Fatal("deriving different indices produced the same key")
	}
}
