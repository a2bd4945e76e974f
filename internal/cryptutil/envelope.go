package cryptutil

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// envelopeMagic identifies a sealed database envelope file on disk.
var envelopeMagic = [4]byte{'K', 'E', 'E', '1'}

const saltSize = 16

// ErrEnvelopeTooShort is returned when a file claiming to be an envelope is
// too small to contain a valid header.
var ErrEnvelopeTooShort = errors.New("cryptutil: envelope file too short")

// ErrBadMagic is returned when a file's header does not match the expected
// envelope magic bytes, i.e. it was never sealed by SealFile.
var ErrBadMagic = errors.New("cryptutil: not a keeply envelope")

// SealFile encrypts the contents of plainPath and writes the result to
// encPath as: magic(4) || salt(16) || nonce(24) || ciphertext+tag. secret is
// the operator-supplied passphrase; a fresh random salt is generated per
// seal so the derived key changes even if the secret is reused.
//
// Used to fold the live "*.runtime.sqlite" working copy back into its
// at-rest "*.enc" form on clean shutdown or checkpoint (spec §6.4).
func SealFile(plainPath, encPath, secret string) error {
	plaintext, err := os.ReadFile(plainPath)
	if err != nil {
		return fmt.Errorf("cryptutil: reading plaintext %s: %w", plainPath, err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("cryptutil: generating salt: %w", err)
	}

	key := DeriveKey(secret, salt)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("cryptutil: constructing AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("cryptutil: generating nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	tmpPath := encPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("cryptutil: opening envelope temp file: %w", err)
	}

	if err := writeEnvelope(f, salt, nonce, ciphertext); err != nil {
		f.Close()
		os.Remove(tmpPath)

		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("cryptutil: syncing envelope: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cryptutil: closing envelope: %w", err)
	}

	if err := os.Rename(tmpPath, encPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cryptutil: renaming envelope into place: %w", err)
	}

	return nil
}

func writeEnvelope(w io.Writer, salt, nonce, ciphertext []byte) error {
	if _, err := w.Write(envelopeMagic[:]); err != nil {
		return fmt.Errorf("cryptutil: writing magic: %w", err)
	}

	if _, err := w.Write(salt); err != nil {
		return fmt.Errorf("cryptutil: writing salt: %w", err)
	}

	if _, err := w.Write(nonce); err != nil {
		return fmt.Errorf("cryptutil: writing nonce: %w", err)
	}

	if _, err := w.Write(ciphertext); err != nil {
		return fmt.Errorf("cryptutil: writing ciphertext: %w", err)
	}

	return nil
}

// OpenFile decrypts the envelope at encPath and writes the plaintext to
// plainPath, recreating the runtime SQLite working copy from its at-rest
// form. Returns ErrEnvelopeTooShort or ErrBadMagic if the header is
// missing or malformed; a wrong secret or corrupt ciphertext fails AEAD
// authentication and is reported as a wrapped decrypt error, not
// silently accepted.
func OpenFile(encPath, plainPath, secret string) error {
	raw, err := os.ReadFile(encPath)
	if err != nil {
		return fmt.Errorf("cryptutil: reading envelope %s: %w", encPath, err)
	}

	nonceSize := chacha20poly1305.NonceSizeX
	headerSize := len(envelopeMagic) + saltSize + nonceSize

	if len(raw) < headerSize {
		return ErrEnvelopeTooShort
	}

	if [4]byte(raw[:4]) != envelopeMagic {
		return ErrBadMagic
	}

	salt := raw[4 : 4+saltSize]
	nonce := raw[4+saltSize : headerSize]
	ciphertext := raw[headerSize:]

	key := DeriveKey(secret, salt)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("cryptutil: constructing AEAD: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("cryptutil: decrypting envelope (wrong secret or corrupt file): %w", err)
	}

	if err := os.WriteFile(plainPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("cryptutil: writing plaintext %s: %w", plainPath, err)
	}

	return nil
}

// IsEnvelope reports whether path exists and looks like a sealed envelope
// (has the expected magic header). Used by the Store to decide between
// "first run, create fresh" and "decrypt existing" at startup.
func IsEnvelope(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var magic [4]byte

	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}

	return magic == envelopeMagic
}
