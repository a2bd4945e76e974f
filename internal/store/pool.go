package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PooledConn wraps a borrowed *sql.Conn. Close returns it to the pool;
// if the caller left a transaction open, Close rolls it back first so a
// forgotten commit never leaks a lock to the next borrower.
type PooledConn struct {
	conn *sql.Conn
	tx   *sql.Tx
	pool *SimplePool
}

// Conn returns the underlying *sql.Conn for direct queries.
func (p *PooledConn) Conn() *sql.Conn {
	return p.conn
}

// Begin starts a transaction on this connection and remembers it so
// Close can roll it back if the caller never commits or rolls back
// explicitly.
func (p *PooledConn) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}

	p.tx = tx

	return tx, nil
}

// Close rolls back any open transaction and releases the connection
// back to the pool. Safe to call multiple times.
func (p *PooledConn) Close() error {
	if p.conn == nil {
		return nil // already closed; the slot was released then
	}

	if p.tx != nil {
		_ = p.tx.Rollback() // no-op if already committed or rolled back
		p.tx = nil
	}

	err := p.conn.Close()
	p.conn = nil
	p.pool.release()

	return err
}

// SimplePool bounds the number of connections concurrently borrowed from
// a *sql.DB. Unlike relying on sql.DB's own pool limits, Borrow blocks
// until a slot is free rather than queuing at the driver level, which
// keeps scan workers from piling up more in-flight statements than the
// single SQLite writer can serialize.
type SimplePool struct {
	db    *sql.DB
	slots chan struct{}
}

// NewSimplePool creates a pool bounded to size concurrently borrowed
// connections against db.
func NewSimplePool(db *sql.DB, size int) *SimplePool {
	if size < 1 {
		size = 1
	}

	return &SimplePool{
		db:    db,
		slots: make(chan struct{}, size),
	}
}

// Borrow blocks until a slot is available, then returns a dedicated
// *sql.Conn wrapped for safe release. The caller must Close the
// returned PooledConn.
func (p *SimplePool) Borrow(ctx context.Context) (*PooledConn, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		<-p.slots
		return nil, fmt.Errorf("store: borrow connection: %w", err)
	}

	return &PooledConn{conn: conn, pool: p}, nil
}

func (p *SimplePool) release() {
	<-p.slots
}
