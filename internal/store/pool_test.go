package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplePoolBorrowAndClose(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pool := NewSimplePool(st.db, 2)

	c1, err := pool.Borrow(ctx)
	require.NoError(t, err)

	c2, err := pool.Borrow(ctx)
	require.NoError(t, err)

	require.NoError(t, c1.Close())
	require.NoError(t, c2.Close())
}

func TestSimplePoolBlocksUntilSlotFree(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pool := NewSimplePool(st.db, 1)

	c1, err := pool.Borrow(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup

	wg.Add(1)

	borrowed := make(chan struct{})

	go func() {
		defer wg.Done()

		c2, err := pool.Borrow(ctx)
		require.NoError(t, err)
		close(borrowed)

		require.NoError(t, c2.Close())
	}()

	select {
	case <-borrowed:
		t.Fatal("second borrow should have blocked while first slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, c1.Close())

	wg.Wait()
}

func TestPooledConnCloseRollsBackOpenTransaction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pool := NewSimplePool(st.db, 1)

	c, err := pool.Borrow(ctx)
	require.NoError(t, err)

	tx, err := c.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.ExecContext(ctx, `INSERT INTO agent_state (state_key, value, updated_at) VALUES (?, ?, ?)`,
		"agent.link_state", "uncommitted", 1)
	require.NoError(t, err)

	require.NoError(t, c.Close())

	_, ok, err := st.GetAgentState(ctx, "agent.link_state")
	require.NoError(t, err)
	assert.False(t, ok, "transaction left open by the caller must be rolled back on Close")
}
