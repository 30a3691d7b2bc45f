// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements monitor.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DedupeKey derives a deterministic alert dedupe key from the alert type and
// its canonical details payload.
func DedupeKey(alertType string, details []byte) string {
	hasher := sha256.New()
	hasher.Write([]byte(alertType))
	hasher.Write([]byte{0})
	hasher.Write(details)
	return hex.EncodeToString(hasher.Sum(nil))
}
