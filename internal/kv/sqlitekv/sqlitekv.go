// Package sqlitekv implements internal/kv.Store over a local SQLite
// database via modernc.org/sqlite, translating a transactional KV contract
// onto a SQL engine so that the rest of the system never notices whether
// it's talking to a single local file or a distributed cluster.
//
// This backend is intended for local development, single-process
// deployments, and the bulk of the unit test suite; internal/kv/etcdkv is
// the production, multi-machine backend.
package sqlitekv

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joshua-project/joshua/internal/kv"
	_ "modernc.org/sqlite"
)

// Open creates or opens a SQLite-backed Store at path. Use ":memory:" for an
// ephemeral store scoped to the process (handy for unit tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	// A single writer at a time, serialized entirely by sqlite itself;
	// Joshua's own transaction semantics (conflict retry, versionstamps)
	// are layered on top rather than relying on sqlite for them directly.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 2000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v BLOB NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS vs_seq (id INTEGER PRIMARY KEY CHECK (id = 1), n INTEGER NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create vs_seq table: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO vs_seq (id, n) VALUES (1, 0)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed vs_seq table: %w", err)
	}

	return &Store{db: db, retry: kv.DefaultRetryConfig}, nil
}

// Store is a kv.Store backed by a local SQLite database.
type Store struct {
	db    *sql.DB
	retry kv.RetryConfig
}

var _ kv.Store = (*Store)(nil)

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Transact implements kv.Store.Transact with sqlite's own write-lock
// contention standing in for FoundationDB-style optimistic conflicts: a
// "database is locked" error from a concurrent writer is treated exactly
// like kv.ErrConflict and retried with the shared backoff schedule.
func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, tx kv.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(s.retry.Backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := s.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: exhausted %d attempts: %v", kv.ErrConflict, s.retry.MaxAttempts, lastErr)
}

func (s *Store) attempt(ctx context.Context, fn func(ctx context.Context, tx kv.Tx) error) (retErr error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLiteErr(err)
	}
	defer func() {
		if retErr != nil {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &transaction{ctx: ctx, sqlTx: sqlTx}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if tx.err != nil {
		return tx.err
	}

	if len(tx.futures) > 0 {
		vs, err := nextVersionstamp(sqlTx)
		if err != nil {
			return err
		}
		for _, f := range tx.futures {
			kv.ResolveVersionstampFuture(f, vs)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return wrapSQLiteErr(err)
	}
	return nil
}

// nextVersionstamp atomically increments vs_seq and encodes the resulting
// monotonic counter as a 10-byte versionstamp (8-byte big-endian counter in
// the low-order bytes, 2 leading zero bytes — the counter alone is already
// globally unique and ordered, so no sub-transaction order byte is needed).
func nextVersionstamp(tx *sql.Tx) (kv.Versionstamp, error) {
	if _, err := tx.Exec(`UPDATE vs_seq SET n = n + 1 WHERE id = 1`); err != nil {
		return kv.Versionstamp{}, wrapSQLiteErr(err)
	}
	var n int64
	if err := tx.QueryRow(`SELECT n FROM vs_seq WHERE id = 1`).Scan(&n); err != nil {
		return kv.Versionstamp{}, wrapSQLiteErr(err)
	}
	var vs kv.Versionstamp
	binary.BigEndian.PutUint64(vs[2:], uint64(n))
	return vs, nil
}

// Snapshot implements kv.Store.Snapshot as a read-only transaction.
func (s *Store) Snapshot(ctx context.Context, fn func(ctx context.Context, tx kv.ReadTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return wrapSQLiteErr(err)
	}
	defer sqlTx.Rollback()

	tx := &transaction{ctx: ctx, sqlTx: sqlTx}
	return fn(ctx, tx)
}

// Watch does not observe changes: no local change-feed is wired up for the
// sqlite backend, so it waits 5 seconds (or until ctx is canceled) and
// returns, whether or not anything under [begin, end) changed. Callers
// pair a watch with a poll fallback per kv.Store.Watch's contract, so
// this only costs wakeups.
func (s *Store) Watch(ctx context.Context, begin, end string) error {
	select {
	case <-time.After(5 * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isConflict(err error) bool {
	return errors.Is(err, kv.ErrConflict) || strings.Contains(err.Error(), "locked") || strings.Contains(err.Error(), "busy")
}

func wrapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "locked") || strings.Contains(err.Error(), "busy") {
		return fmt.Errorf("%w: %v", kv.ErrConflict, err)
	}
	return err
}
