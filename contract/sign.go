package contract

import (
	"encoding/hex"
	"fmt"

	"gitlab.com/shardnet/core/crypto"
)

// Actor identifies which party's signature field an operation targets.
type Actor string

const (
	// ActorRenter targets renter_id / renter_signature.
	ActorRenter Actor = "renter"
	// ActorFarmer targets farmer_id / farmer_signature.
	ActorFarmer Actor = "farmer"
)

func (a Actor) signatureField() (string, error) {
	switch a {
	case ActorRenter:
		return FieldRenterSignature, nil
	case ActorFarmer:
		return FieldFarmerSignature, nil
	default:
		return "", fmt.Errorf("contract: unknown actor %q", a)
	}
}

func (a Actor) idField() (string, error) {
	switch a {
	case ActorRenter:
		return FieldRenterID, nil
	case ActorFarmer:
		return FieldFarmerID, nil
	default:
		return "", fmt.Errorf("contract: unknown actor %q", a)
	}
}

// Sign computes the canonical signing bytes and writes the resulting
// base64 compact signature into <actor>_signature.
func (c *Contract) Sign(actor Actor, sk crypto.SecretKey) error {
	sigField, err := actor.signatureField()
	if err != nil {
		return err
	}
	sigB64, err := c.signExternal(sk)
	if err != nil {
		return err
	}
	c.Set(sigField, sigB64)
	return nil
}

// SignExternal signs the contract's current signing bytes without mutating
// it, so the caller can verify a signature before accepting it - the
// pattern renewal relies on, where the new signature must check out against
// the updated bytes before the contract is accepted.
func (c *Contract) SignExternal(sk crypto.SecretKey) (string, error) {
	return c.signExternal(sk)
}

func (c *Contract) signExternal(sk crypto.SecretKey) (string, error) {
	b, err := c.SigningBytes()
	if err != nil {
		return "", err
	}
	h := crypto.HashBytes(b)
	return sk.SignBase64(h)
}

// Verify recovers the public key from actor's compact signature over the
// contract's canonical signing bytes and checks it against the claimed
// identity - directly, or via the renter's HD-derived key when
// renter_hd_key is present.
func (c *Contract) Verify(actor Actor) bool {
	sigField, err := actor.signatureField()
	if err != nil {
		return false
	}
	sigVal, ok := c.Get(sigField)
	if !ok {
		return false
	}
	sigB64, _ := sigVal.(string)

	b, err := c.SigningBytes()
	if err != nil {
		return false
	}
	h := crypto.HashBytes(b)

	if actor == ActorRenter {
		if hdKeyVal, ok := c.Get(FieldRenterHDKey); ok {
			hdKeyHex, _ := hdKeyVal.(string)
			idxVal, ok := c.Get(FieldRenterHDIndex)
			if !ok {
				return false
			}
			idx, _ := idxVal.(uint32)
			epk, err := decodeExtendedPublicKey(hdKeyHex)
			if err != nil {
				return false
			}
			return crypto.VerifyHD(h, sigB64, epk, idx)
		}
	}

	idField, err := actor.idField()
	if err != nil {
		return false
	}
	idVal, ok := c.Get(idField)
	if !ok {
		return false
	}
	idHex, _ := idVal.(string)
	identity, err := crypto.HashFromString(idHex)
	if err != nil {
		return false
	}
	return crypto.VerifySignature(h, sigB64, identity)
}

// decodeExtendedPublicKey parses the hex-encoded renter_hd_key field: a
// 33-byte compressed public key followed by a 32-byte chain code.
func decodeExtendedPublicKey(s string) (crypto.ExtendedPublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return crypto.ExtendedPublicKey{}, err
	}
	if len(b) != 33+32 {
		return crypto.ExtendedPublicKey{}, fmt.Errorf("contract: renter_hd_key must be 65 bytes (33-byte pubkey + 32-byte chain code)")
	}
	pk, err := crypto.PublicKeyFromBytes(b[:33])
	if err != nil {
		return crypto.ExtendedPublicKey{}, err
	}
	var epk crypto.ExtendedPublicKey
	epk.PublicKey = pk
	copy(epk.ChainCode[:], b[33:])
	return epk, nil
}
