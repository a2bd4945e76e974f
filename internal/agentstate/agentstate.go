// Package agentstate implements typed JSON accessors over the
// agent_state key/value rows (spec §4.9): device identity, pairing
// state, and link state, each a single-row JSON blob keyed by a fixed
// stateKey. On first read, if the sqlite row is absent but a legacy
// on-disk JSON file exists at a well-known path, the legacy file is
// imported into the store and then removed.
package agentstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/keeply/backup-agent/internal/store"
)

// DeviceIdentity is the agent's self-assigned identity, generated once
// on first run and never regenerated.
type DeviceIdentity struct {
	DeviceID   string `json:"deviceId"`
	CreatedAt  int64  `json:"createdAt"`
	AgentBuild string `json:"agentBuild,omitempty"`
}

// PairingState records whether this agent has been paired with a
// remote control-plane server and, if so, which one.
type PairingState struct {
	Paired    bool   `json:"paired"`
	ServerURL string `json:"serverUrl,omitempty"`
	PairedAt  *int64 `json:"pairedAt,omitempty"`
}

// LinkState records the outcome of the last device-pairing handshake
// (verification code exchange), independent of whether pairing itself
// succeeded.
type LinkState struct {
	Linked   bool   `json:"linked"`
	LinkedAt *int64 `json:"linkedAt,omitempty"`
	LastCode string `json:"lastCode,omitempty"`
}

// Store is the narrow persistence surface agentstate needs.
type Store interface {
	GetAgentState(ctx context.Context, key string) (string, bool, error)
	SetAgentState(ctx context.Context, key, value string, updatedAt int64) error
}

// Accessor reads and writes the three AgentState blobs, migrating each
// from a legacy JSON file on first read if the sqlite row is absent.
type Accessor struct {
	st        Store
	legacyDir string
	nowFunc   func() int64
}

// New builds an Accessor. legacyDir is the directory formerly used to
// hold standalone JSON state files (one per stateKey, named
// "<key-suffix>.json"); pass "" to disable legacy migration entirely.
func New(st Store, legacyDir string, nowFunc func() int64) *Accessor {
	return &Accessor{st: st, legacyDir: legacyDir, nowFunc: nowFunc}
}

func (a *Accessor) legacyPath(key string) string {
	if a.legacyDir == "" {
		return ""
	}

	suffix := key
	if idx := lastDot(key); idx >= 0 {
		suffix = key[idx+1:]
	}

	return filepath.Join(a.legacyDir, suffix+".json")
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}

	return -1
}

// get loads the raw JSON for key, importing a legacy file if the
// sqlite row is absent. Returns ("", false, nil) if neither exists.
func (a *Accessor) get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := a.st.GetAgentState(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("agentstate: get %s: %w", key, err)
	}

	if ok {
		return raw, true, nil
	}

	legacy := a.legacyPath(key)
	if legacy == "" {
		return "", false, nil
	}

	data, err := os.ReadFile(legacy)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("agentstate: reading legacy file %s: %w", legacy, err)
	}

	if err := a.st.SetAgentState(ctx, key, string(data), a.nowFunc()); err != nil {
		return "", false, fmt.Errorf("agentstate: importing legacy %s: %w", key, err)
	}

	if err := os.Remove(legacy); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", false, fmt.Errorf("agentstate: removing legacy file %s: %w", legacy, err)
	}

	return string(data), true, nil
}

func (a *Accessor) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("agentstate: encoding %s: %w", key, err)
	}

	if err := a.st.SetAgentState(ctx, key, string(data), a.nowFunc()); err != nil {
		return fmt.Errorf("agentstate: set %s: %w", key, err)
	}

	return nil
}

// DeviceIdentity returns the stored device identity, or (nil, nil) if
// none has been established yet.
func (a *Accessor) DeviceIdentity(ctx context.Context) (*DeviceIdentity, error) {
	raw, ok, err := a.get(ctx, store.StateKeyDeviceIdentity)
	if err != nil || !ok {
		return nil, err
	}

	var v DeviceIdentity
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("agentstate: decoding device identity: %w", err)
	}

	return &v, nil
}

// SetDeviceIdentity persists v.
func (a *Accessor) SetDeviceIdentity(ctx context.Context, v DeviceIdentity) error {
	return a.set(ctx, store.StateKeyDeviceIdentity, v)
}

// PairingState returns the stored pairing state, or (nil, nil) if
// pairing has never been attempted.
func (a *Accessor) PairingState(ctx context.Context) (*PairingState, error) {
	raw, ok, err := a.get(ctx, store.StateKeyPairingState)
	if err != nil || !ok {
		return nil, err
	}

	var v PairingState
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("agentstate: decoding pairing state: %w", err)
	}

	return &v, nil
}

// SetPairingState persists v.
func (a *Accessor) SetPairingState(ctx context.Context, v PairingState) error {
	return a.set(ctx, store.StateKeyPairingState, v)
}

// LinkState returns the stored link state, or (nil, nil) if no
// handshake has been recorded yet.
func (a *Accessor) LinkState(ctx context.Context) (*LinkState, error) {
	raw, ok, err := a.get(ctx, store.StateKeyLinkState)
	if err != nil || !ok {
		return nil, err
	}

	var v LinkState
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("agentstate: decoding link state: %w", err)
	}

	return &v, nil
}

// SetLinkState persists v.
func (a *Accessor) SetLinkState(ctx context.Context, v LinkState) error {
	return a.set(ctx, store.StateKeyLinkState, v)
}
