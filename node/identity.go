package node

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"gitlab.com/shardnet/core/crypto"
)

const identityFile = "identity.key"

// loadOrGenerateIdentity reads a hex-encoded secret key from dir, generating
// and persisting a fresh one if none exists yet. The key file is written
// with owner-only permissions, the same as the teacher's wallet seed file.
func loadOrGenerateIdentity(dir string) (crypto.SecretKey, error) {
	path := filepath.Join(dir, identityFile)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		sk, genErr := crypto.GenerateKeyPair()
		if genErr != nil {
			return crypto.SecretKey{}, genErr
		}
		encoded := hex.EncodeToString(sk.Bytes())
		if writeErr := os.WriteFile(path, []byte(encoded), 0600); writeErr != nil {
			return crypto.SecretKey{}, writeErr
		}
		return sk, nil
	}
	if err != nil {
		return crypto.SecretKey{}, err
	}

	keyBytes, err := hex.DecodeString(string(raw))
	if err != nil {
		return crypto.SecretKey{}, err
	}
	return crypto.SecretKeyFromBytes(keyBytes)
}
