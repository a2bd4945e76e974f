package cryptutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	plainPath := filepath.Join(dir, "data.runtime.sqlite")
	encPath := filepath.Join(dir, "data.enc")
	restoredPath := filepath.Join(dir, "restored.sqlite")

	want := []byte("pretend this is sqlite file bytes")
	require.NoError(t, os.WriteFile(plainPath, want, 0o600))

	require.NoError(t, SealFile(plainPath, encPath, "correct horse battery staple"))
	assert.True(t, IsEnvelope(encPath))

	require.NoError(t, OpenFile(encPath, restoredPath, "correct horse battery staple"))

	got, err := os.ReadFile(restoredPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOpenFileWrongSecret(t *testing.T) {
	dir := t.TempDir()
	plainPath := filepath.Join(dir, "data.runtime.sqlite")
	encPath := filepath.Join(dir, "data.enc")
	restoredPath := filepath.Join(dir, "restored.sqlite")

	require.NoError(t, os.WriteFile(plainPath, []byte("secret bytes"), 0o600))
	require.NoError(t, SealFile(plainPath, encPath, "right-secret"))

	err := OpenFile(encPath, restoredPath, "wrong-secret")
	assert.Error(t, err)
}

func TestIsEnvelopeRejectsPlainFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-an-envelope")
	require.NoError(t, os.WriteFile(path, []byte("plain sqlite header"), 0o600))

	assert.False(t, IsEnvelope(path))
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1 := DeriveKey("hunter2", salt)
	k2 := DeriveKey("hunter2", salt)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeySize)

	k3 := DeriveKey("different", salt)
	assert.NotEqual(t, k1, k3)
}
