// Package persist implements the small set of on-disk conventions used
// throughout the shard core: atomic JSON persistence with a versioned
// header, a bracketed startup/shutdown file logger, and a bbolt-backed
// database opener that enforces the same header/version contract.
package persist

import (
	"encoding/hex"

	"gitlab.com/NebulousLabs/fastrand"
)

const (
	// persistDir names this package's subdirectory under the shared
	// testing root; the package's own test helpers build their paths
	// without it.
	persistDir = "persist"
)

// Metadata identifies the logical contents and schema version of a
// persisted file or database. SaveJSON/LoadJSON and OpenDatabase all
// reject a mismatched Metadata rather than silently reading data produced
// by a different component or an incompatible version.
type Metadata struct {
	Header  string
	Version string
}

// RandomSuffix returns a random hex string suitable for building a unique
// temporary filename.
func RandomSuffix() string {
	return hex.EncodeToString(fastrand.Bytes(6))
}

// ErrBadHeader is returned when a persisted file or database's header does
// not match what the caller expected.
var ErrBadHeader = errorString("persist: mismatched header")

// ErrBadVersion is returned when a persisted file or database's version
// does not match what the caller expected.
var ErrBadVersion = errorString("persist: mismatched version")
