// Package audit implements the challenge/response proof-of-possession
// scheme: AuditStream builds a set of challenges and a Merkle tree over a
// shard without transferring it twice, ProofStream answers a single
// challenge against the published leaves, and Verifier checks the answer
// against a retained root.
package audit

import "gitlab.com/shardnet/core/crypto"

// internalHash is the Merkle tree's internal-node function. It is
// RIPEMD160(SHA256(·)), the same function leafFor applies (through
// crypto.HashBytes) to turn a challenge pre-image hash into a leaf, but named here so the tree-building code reads
// as "hash these two children" rather than "hash these bytes".
func internalHash(left, right crypto.Hash) crypto.Hash {
	return crypto.HashAll(left[:], right[:])
}

// emptyLeaf pads a leaf set to a power of two. It is RIPEMD160(SHA256(""))
// per the padding rule.
func emptyLeaf() crypto.Hash {
	return crypto.HashBytes(nil)
}

// padLeaves returns leaves extended with emptyLeaf() until its length is a
// power of two (minimum 2).
func padLeaves(leaves []crypto.Hash) []crypto.Hash {
	n := nextPowerOfTwo(len(leaves))
	if n == len(leaves) {
		return leaves
	}
	padded := make([]crypto.Hash, n)
	copy(padded, leaves)
	pad := emptyLeaf()
	for i := len(leaves); i < n; i++ {
		padded[i] = pad
	}
	return padded
}

// nextPowerOfTwo rounds n up to a power of two, with a floor of 2: a
// single-challenge audit still needs one sibling to produce a pair-shaped
// proof, so it is padded up to a depth-1 tree rather than left as a
// depth-0 tree with no structure to walk.
func nextPowerOfTwo(n int) int {
	if n <= 2 {
		return 2
	}
	p := 2
	for p < n {
		p <<= 1
	}
	return p
}

func depthOf(leafCount int) int {
	d := 0
	for n := 1; n < leafCount; n <<= 1 {
		d++
	}
	return d
}

// merkleLevels builds every level of the tree bottom-up from a
// power-of-two-sized leaf set, levels[0] being the leaves themselves and
// the last level being the single-element root level.
func merkleLevels(leaves []crypto.Hash) [][]crypto.Hash {
	levels := [][]crypto.Hash{leaves}
	cur := leaves
	for len(cur) > 1 {
		next := make([]crypto.Hash, len(cur)/2)
		for i := range next {
			next[i] = internalHash(cur[2*i], cur[2*i+1])
		}
		levels = append(levels, next)
		cur = next
	}
	return levels
}

// merkleRoot returns the top hash of the tree built over leaves, after
// padding to a power of two.
func merkleRoot(leaves []crypto.Hash) crypto.Hash {
	padded := padLeaves(leaves)
	levels := merkleLevels(padded)
	return levels[len(levels)-1][0]
}
