// Package hasher computes content hashes for files discovered by the
// walker, applying the size-cap and disabled-hashing policies from
// spec §4.4.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/keeply/backup-agent/internal/store"
)

// Algo identifies the hash function used throughout the store and blob
// layout. SHA-256 is the only algorithm the spec names.
const Algo = "sha256"

const readBufferSize = 64 * 1024

// Options configures a Hasher.
type Options struct {
	HashMaxBytes int64 // 0 disables the size cap
	Disabled     bool
}

// Result carries the outcome of hashing one file.
type Result struct {
	Status  string // one of the store.Hash* constants
	HashHex string
	Err     error
}

// Hasher computes SHA-256 digests with a 64 KiB streaming buffer.
type Hasher struct {
	opts Options
}

// New builds a Hasher from opts.
func New(opts Options) *Hasher {
	return &Hasher{opts: opts}
}

// Hash reads fullPath and returns its content hash, honoring the
// disabled and size-cap policies before touching the filesystem.
func (h *Hasher) Hash(fullPath string, sizeBytes int64) Result {
	if h.opts.Disabled {
		return Result{Status: store.HashDisabled}
	}

	if h.opts.HashMaxBytes > 0 && sizeBytes > h.opts.HashMaxBytes {
		return Result{Status: store.HashSkippedSize}
	}

	digest, err := hashFile(fullPath)
	if err != nil {
		return Result{Status: store.HashFailed, Err: err}
	}

	return Result{Status: store.HashOK, HashHex: digest}
}

func hashFile(fullPath string) (string, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return "", fmt.Errorf("hasher: opening %s: %w", fullPath, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, readBufferSize)

	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hasher: reading %s: %w", fullPath, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
