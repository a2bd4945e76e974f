package store

import (
	"context"
	"fmt"
)

const (
	sqlGetAgentState = `SELECT value FROM agent_state WHERE state_key = ?`

	sqlSetAgentState = `INSERT INTO agent_state (state_key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(state_key) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at`
)

// GetAgentState returns the JSON value stored under key, or ("", false,
// nil) if unset. Callers (device identity, pairing state, link state)
// unmarshal the value themselves; the store treats it as opaque text.
func (s *SQLiteStore) GetAgentState(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.db.QueryRowContext(ctx, sqlGetAgentState, key).Scan(&value)
	if isNoRows(err) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("store: get agent state %s: %w", key, err)
	}

	return value, true, nil
}

// SetAgentState upserts the JSON value stored under key.
func (s *SQLiteStore) SetAgentState(ctx context.Context, key, value string, updatedAt int64) error {
	err := withBusyRetry(ctx, s.logger, &s.dbRetries, func() error {
		_, err := s.db.ExecContext(ctx, sqlSetAgentState, key, value, updatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: set agent state %s: %w", key, err)
	}

	return nil
}
