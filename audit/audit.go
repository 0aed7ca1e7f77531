package audit

import (
	"encoding/hex"

	"gitlab.com/shardnet/core/crypto"
	"gitlab.com/NebulousLabs/fastrand"
)

// ChallengeSize is the length, in bytes, of a single audit challenge
// pre-image before hex encoding.
const ChallengeSize = 32

// Private is the renter-retained audit record: the Merkle root, the
// challenge pre-images used to build it, and the tree depth.
type Private struct {
	Root       crypto.Hash
	Challenges []string
	Depth      int
}

// Public is the farmer-retained audit record: the padded leaf set, with no
// information that would let the farmer forge a proof for an
// as-yet-unused challenge.
type Public struct {
	Leaves []crypto.Hash
}

// AuditStream builds n challenges against shard and returns both the
// renter's private record and the farmer's public record. It takes the
// whole shard in memory and hashes it once per challenge to compute each
// leaf; it does not read the shard as a stream.
func AuditStream(n int, shard []byte) (Private, Public, error) {
	challenges := make([]string, n)
	leaves := make([]crypto.Hash, n)
	for i := 0; i < n; i++ {
		pre := fastrand.Bytes(ChallengeSize)
		challenges[i] = hex.EncodeToString(pre)
		leaves[i] = leafFor(pre, shard)
	}

	padded := padLeaves(leaves)
	root := merkleRoot(padded)
	depth := depthOf(len(padded))

	return Private{
			Root:       root,
			Challenges: challenges,
			Depth:      depth,
		}, Public{
			Leaves: padded,
		}, nil
}

// leafFor computes RIPEMD160(SHA256(RIPEMD160(SHA256(preimage||shard)))),
// the leaf value for a single challenge pre-image.
func leafFor(preimage, shard []byte) crypto.Hash {
	inner := crypto.HashAll(preimage, shard)
	return crypto.HashBytes(inner[:])
}
