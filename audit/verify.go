package audit

import "gitlab.com/shardnet/core/crypto"

// Verifier collapses a Proof bottom-up and compares the result against a
// retained root.
type Verifier struct {
	proof Proof
}

// NewVerifier wraps proof for verification.
func NewVerifier(proof Proof) Verifier {
	return Verifier{proof: proof}
}

// Verify collapses the proof and reports both the computed root and
// whether it equals expectedRoot at the expected depth. A depth mismatch
// or a malformed proof (a nil field with no alternative set) is reported
// as a mismatch, never a panic.
func (v Verifier) Verify(expectedRoot crypto.Hash, expectedDepth int) (computed crypto.Hash, ok bool) {
	gotDepth, wellFormed := depthOfProof(v.proof)
	if !wellFormed || gotDepth != expectedDepth {
		return crypto.Hash{}, false
	}
	computed, ok = collapse(v.proof)
	if !ok {
		return crypto.Hash{}, false
	}
	return computed, computed == expectedRoot
}

func collapseElement(e Element) (crypto.Hash, bool) {
	switch {
	case e.Pair != nil:
		return collapse(*e.Pair)
	case e.Preimage != nil:
		return crypto.HashBytes((*e.Preimage)[:]), true
	case e.Sibling != nil:
		return *e.Sibling, true
	default:
		return crypto.Hash{}, false
	}
}

func collapse(p Proof) (crypto.Hash, bool) {
	l, ok := collapseElement(p.Left)
	if !ok {
		return crypto.Hash{}, false
	}
	r, ok := collapseElement(p.Right)
	if !ok {
		return crypto.Hash{}, false
	}
	return internalHash(l, r), true
}

// depthOfProof walks the single active path through the proof - the chain
// of Pair nestings leading down to the one Preimage position - and reports
// its length. The sibling at each level is a flat stand-in hash for an
// entire co-subtree, not itself part of the path, so it carries no depth
// of its own; a well-formed proof has exactly one active side (Pair or
// Preimage) and one Sibling side at every level.
func depthOfProof(p Proof) (depth int, ok bool) {
	active, sibling, ok := splitPair(p)
	if !ok {
		return 0, false
	}
	_ = sibling
	switch {
	case active.Preimage != nil:
		return 1, true
	case active.Pair != nil:
		d, ok := depthOfProof(*active.Pair)
		if !ok {
			return 0, false
		}
		return d + 1, true
	default:
		return 0, false
	}
}

// splitPair identifies which side of p is the active (Pair or Preimage)
// side and which is the flat Sibling side. It fails if both or neither
// side is active, or if the passive side is not a plain Sibling.
func splitPair(p Proof) (active, sibling Element, ok bool) {
	lActive := p.Left.Pair != nil || p.Left.Preimage != nil
	rActive := p.Right.Pair != nil || p.Right.Preimage != nil
	if lActive == rActive {
		return Element{}, Element{}, false
	}
	if lActive {
		if p.Right.Sibling == nil {
			return Element{}, Element{}, false
		}
		return p.Left, p.Right, true
	}
	if p.Left.Sibling == nil {
		return Element{}, Element{}, false
	}
	return p.Right, p.Left, true
}
