package audit

import (
	"encoding/hex"

	"gitlab.com/shardnet/core/core"
	"gitlab.com/shardnet/core/crypto"
)

// Element is one side of a Proof pair: exactly one of its fields is set.
// Preimage marks the single deepest position in the proof - the
// challenge/shard pre-image hash, which still needs one more application
// of the internal hash function to become a leaf before it can be
// collapsed against its sibling. Sibling is an already-resolved hash
// carried along the path. Pair is a nested, still-unresolved subtree.
type Element struct {
	Preimage *crypto.Hash
	Sibling  *crypto.Hash
	Pair     *Proof
}

// Proof is the recursively nested two-element witness structure: each
// level is a [left, right] pair where either side may itself be an
// unresolved pair, a resolved sibling hash, or (only at the single deepest
// position) the raw challenge pre-image hash.
type Proof struct {
	Left  Element
	Right Element
}

// ProofStream locates challenge's leaf among the published leaves and
// returns the nested witness a verifier can collapse up to the root.
func ProofStream(leaves []crypto.Hash, challenge string, shard []byte) (Proof, error) {
	pre, err := hex.DecodeString(challenge)
	if err != nil {
		return Proof{}, core.NewError(core.KindValidation, "challenge is not valid hex")
	}
	leaf := leafFor(pre, shard)

	padded := padLeaves(leaves)
	idx := -1
	for i, l := range padded {
		if l == leaf {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Proof{}, core.NewError(core.KindValidation, "invalid challenge")
	}

	levels := merkleLevels(padded)
	preHash := crypto.HashAll(pre, shard)

	// cur starts as the deepest element: the pre-image hash at idx.
	var cur Element
	cur.Preimage = &preHash

	pos := idx
	for level := 0; level < len(levels)-1; level++ {
		siblingPos := pos ^ 1
		sibling := levels[level][siblingPos]

		var parent Proof
		if pos%2 == 0 {
			parent.Left = cur
			parent.Right = Element{Sibling: &sibling}
		} else {
			parent.Left = Element{Sibling: &sibling}
			parent.Right = cur
		}
		cur = Element{Pair: &parent}
		pos /= 2
	}

	// padLeaves guarantees at least two leaves, so the loop above always
	// runs at least once and cur.Pair is always set here.
	return *cur.Pair, nil
}
