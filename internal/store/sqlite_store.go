// Package store persists scan state: scans, deduplicated content,
// the live file_state snapshot, append-only file_change/file_history
// rows, best-effort scan_issue diagnostics, per-scan scan_summary
// counters, the externally visible backup_history list, and small
// agent_state key/value rows (device identity, pairing, link state).
//
// The database is always encrypted at rest. The on-disk ".enc" file is
// a cryptutil envelope; Open decrypts it into a ".runtime.sqlite"
// working copy that SQLite operates on directly, and Close reseals the
// working copy back into the envelope.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/keeply/backup-agent/internal/cryptutil"
)

const (
	walJournalSizeLimit = 67108864 // 64 MiB WAL journal size limit
	runtimeSuffix       = ".runtime.sqlite"
	envelopeSuffix      = ".enc"
)

// Store is the persistence surface every component depends on. Defined
// as an interface so orchestration code can be tested against a fake.
type Store interface {
	// Scans.
	CreateScan(ctx context.Context, rootPath string, startedAt int64) (int64, error)
	FinishScan(ctx context.Context, scanID int64, status string, finishedAt int64, errMsg *string) error
	GetScan(ctx context.Context, scanID int64) (*Scan, error)
	RecoverStaleRunningScans(ctx context.Context, olderThan, recoveredAt int64) ([]Scan, error)

	// Path and content interning.
	InternPath(ctx context.Context, fullPath string) (int64, error)
	UpsertContent(ctx context.Context, algo, hashHex string, size int64) error

	// File state snapshot.
	GetFileState(ctx context.Context, rootPath, identityType, identityValue string) (*FileState, error)
	UpsertFileState(ctx context.Context, fs FileState) error
	DeleteStaleFiles(ctx context.Context, scanID int64, rootPath string) (int64, error)
	CountFileStatesForRoot(ctx context.Context, rootPath string) (int64, error)
	ListFileStatesForRoot(ctx context.Context, rootPath string, limit int) ([]FileState, error)

	// Append-only history.
	RecordFileChange(ctx context.Context, fc FileChange) error
	SnapshotToHistory(ctx context.Context, scanID int64, entries []ManifestEntry) (int64, error)
	ListFileHistory(ctx context.Context, pathRel string, limit int) ([]FileHistory, error)

	// Diagnostics and summary.
	RecordScanIssue(ctx context.Context, si ScanIssue) error
	UpsertScanSummary(ctx context.Context, s ScanSummary) error
	GetScanSummary(ctx context.Context, scanID int64) (*ScanSummary, error)

	// Backup history (external-facing).
	RecordBackupHistory(ctx context.Context, row BackupHistoryRow) (int64, error)
	UpdateBackupHistory(ctx context.Context, id int64, status string, finishedAt int64, filesProcessed, errs int64, msg *string) error
	ListBackupHistory(ctx context.Context, limit int) ([]BackupHistoryRow, error)

	// Agent state.
	GetAgentState(ctx context.Context, key string) (string, bool, error)
	SetAgentState(ctx context.Context, key, value string, updatedAt int64) error

	// Checkpoint reseals the runtime working copy into its at-rest
	// envelope without closing the database, so a long-running daemon
	// can periodically fsync ciphertext to disk.
	Checkpoint(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store over a WAL-mode SQLite database that is
// always encrypted at rest via a cryptutil envelope.
type SQLiteStore struct {
	db     *sql.DB
	pool   *SimplePool
	logger *slog.Logger

	encPath     string
	runtimePath string
	secret      string

	dbRetries int64
}

// Open decrypts (or creates) the database at dataDir/dbName+".enc",
// applies pending migrations, and returns a ready Store. secret must be
// non-empty; encryption at rest is mandatory, not configurable per-file.
func Open(ctx context.Context, dataDir, dbName, secret string, poolSize int, logger *slog.Logger) (*SQLiteStore, error) {
	if secret == "" {
		return nil, errors.New("store: secret key is required, encryption at rest is mandatory")
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: creating data dir: %w", err)
	}

	encPath := filepath.Join(dataDir, dbName+envelopeSuffix)
	runtimePath := filepath.Join(dataDir, dbName+runtimeSuffix)

	if cryptutil.IsEnvelope(encPath) {
		logger.Info("decrypting existing database", slog.String("path", encPath))

		if err := cryptutil.OpenFile(encPath, runtimePath, secret); err != nil {
			return nil, fmt.Errorf("store: opening envelope: %w", err)
		}
	} else if _, err := os.Stat(encPath); err == nil {
		return nil, fmt.Errorf("store: %s exists but is not a valid envelope", encPath)
	} else {
		logger.Info("creating new encrypted database", slog.String("path", encPath))
	}

	db, err := sql.Open("sqlite", runtimePath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:          db,
		pool:        NewSimplePool(db, poolSize),
		logger:      logger,
		encPath:     encPath,
		runtimePath: runtimePath,
		secret:      secret,
	}

	logger.Info("store ready", slog.String("runtime_path", runtimePath))

	return s, nil
}

// setPragmas configures SQLite for WAL mode with NORMAL synchronous
// durability: fsync only on checkpoint, not every commit. The working
// copy is already a decrypted scratch file resealed on clean shutdown,
// so surviving an unclean crash with zero data loss is not required —
// worst case the runtime copy is discarded and the last sealed ".enc"
// is restored, trading FULL's per-commit fsync cost for scan throughput.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = NORMAL", "synchronous NORMAL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{"PRAGMA busy_timeout = 8000", "busy timeout 8s"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("store: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", slog.String("pragma", p.desc))
	}

	return nil
}

// Checkpoint runs a WAL checkpoint and reseals the runtime working copy
// into its at-rest envelope, without closing the database.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("store: wal checkpoint: %w", err)
	}

	if err := cryptutil.SealFile(s.runtimePath, s.encPath, s.secret); err != nil {
		return fmt.Errorf("store: sealing envelope: %w", err)
	}

	return nil
}

// Close checkpoints, reseals the envelope, closes the database, and
// removes the plaintext runtime working copy from disk.
func (s *SQLiteStore) Close() error {
	if err := s.Checkpoint(context.Background()); err != nil {
		s.logger.Error("sealing envelope on close failed", slog.String("error", err.Error()))
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: closing db: %w", err)
	}

	if err := os.Remove(s.runtimePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing runtime working copy failed", slog.String("error", err.Error()))
	}

	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func joinPlaceholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}

	return strings.Join(ph, ",")
}
