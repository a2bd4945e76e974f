// Package cryptutil derives encryption keys and seals/opens the at-rest
// database envelope used by the encrypted Store (spec §4.1, §6.4).
package cryptutil

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// KDFIterations is the PBKDF2 iteration count mandated for deriving the
// database encryption key from the configured secret.
const KDFIterations = 64000

// KeySize is the derived key length in bytes (AES-256 / ChaCha20-Poly1305).
const KeySize = 32

// DeriveKey derives a KeySize-byte key from secret and salt using
// PBKDF2-HMAC-SHA256 with KDFIterations rounds. The same (secret, salt)
// pair always yields the same key, which is required so the envelope can
// be reopened across process restarts.
func DeriveKey(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secret), salt, KDFIterations, KeySize, sha256.New)
}
