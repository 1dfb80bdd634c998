package kv

import (
	"context"
	"iter"
	"time"

	"github.com/joshua-project/joshua/internal/sentinel"
)

// Sentinel errors surfaced by Store implementations. Callers compare with
// errors.Is; backends wrap these with context via fmt.Errorf("...: %w", ...).
const (
	// ErrNotFound indicates the requested key or id does not exist.
	ErrNotFound = sentinel.Error("kv: not found")

	// ErrConflict indicates the backend detected a commit conflict. It is
	// always retryable; Store.Transact retries internally up to a cap and
	// only returns ErrConflict to the caller once that cap is exhausted.
	ErrConflict = sentinel.Error("kv: commit conflict")

	// ErrTooLarge indicates a single value or transaction exceeded the
	// backend's write budget.
	ErrTooLarge = sentinel.Error("kv: value or transaction too large")

	// ErrClosed indicates an operation was attempted on a closed Store.
	ErrClosed = sentinel.Error("kv: store is closed")
)

// KV is a single key-value pair returned from a range read.
type KV struct {
	Key   string
	Value []byte
}

// RangeSeq is a lazy, cancelable sequence of range results. Iteration can be
// stopped early (the consumer simply stops ranging), which backends must
// treat as cancellation of any underlying cursor/stream rather than an error.
type RangeSeq = iter.Seq2[KV, error]

// RangeOptions configures a range scan. The zero value scans the full
// [Begin, End) span in ascending key order with no limit.
type RangeOptions struct {
	// Reverse, if true, yields results in descending key order.
	Reverse bool
	// Limit caps the number of results yielded; 0 means unlimited.
	Limit int
}

// ReadTx is the read surface shared by snapshot reads and read-write
// transactions. All reads observe a single consistent point in time.
type ReadTx interface {
	// Get returns the value for key. ok is false if the key does not exist.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Range returns every key in [begin, end) in the requested order.
	Range(ctx context.Context, begin, end string, opts RangeOptions) RangeSeq
}

// Tx is a single read-write transaction. All operations performed on a Tx
// take effect atomically when Store.Transact's callback returns nil and the
// backend successfully commits; otherwise nothing is applied.
type Tx interface {
	ReadTx

	// Set writes value at key, replacing any prior value.
	Set(key string, value []byte)

	// Clear removes key. A no-op if the key does not exist.
	Clear(key string)

	// ClearRange removes every key in [begin, end).
	ClearRange(begin, end string)

	// AtomicAdd adds delta to the little-endian uint64 stored at key,
	// treating a missing key as zero. The read-modify-write happens within
	// this transaction's isolation, so concurrent AtomicAdd calls across
	// transactions are serialized by the backend's normal conflict
	// detection rather than by any lock held here.
	AtomicAdd(ctx context.Context, key string, delta int64) error

	// NewVersionstamp returns a placeholder that Store.Transact resolves to
	// this transaction's commit versionstamp once the commit succeeds. The
	// returned future must not be read until after Transact returns nil;
	// reading it earlier returns ok=false.
	//
	// This mirrors FoundationDB's tr.GetVersionstamp(): the value is not
	// knowable until the backend assigns a commit order, so callers that
	// need to embed "the id of the row I'm creating right now" into the
	// same transaction (as Joshua's ensemble creation does) obtain a
	// forward reference instead of a two-phase commit.
	NewVersionstamp() *VersionstampFuture
}

// Store is an open handle to a transactional ordered KV backend. A Store is
// obtained once at process startup (an agent, or a client) and closed once
// at shutdown; it must never be reached for via a package-level global.
type Store interface {
	// Transact runs fn inside a read-write transaction, retrying
	// ErrConflict internally with exponential backoff (spec: 100ms to 3s
	// over 8 attempts) before giving up and returning the last error.
	// fn may be called more than once; it must be idempotent with respect
	// to anything outside the Tx (it should not have side effects other
	// than through the Tx it is given).
	Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Snapshot runs fn inside a read-only, conflict-free transaction. Safe
	// to use for scheduling reads that tolerate concurrent mutation.
	Snapshot(ctx context.Context, fn func(ctx context.Context, tx ReadTx) error) error

	// Watch blocks until a key in [begin, end) changes or ctx is canceled.
	// It returns promptly after any change; callers that want to keep
	// watching must call Watch again. A nil error with no wake-up reason
	// given to the caller is intentional — watches are a best-effort nudge,
	// not a delivery-guaranteed event stream; callers must always pair a
	// watch with a poll fallback (see internal/scheduler's Discovering
	// state).
	Watch(ctx context.Context, begin, end string) error

	// Close releases backend resources. Safe to call once; behavior of a
	// second call is backend-defined but must not panic.
	Close() error
}

// RetryConfig bounds Store.Transact's internal conflict-retry loop. Backends
// share this so retry behavior is identical regardless of transport.
type RetryConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// DefaultRetryConfig implements the transient-KV-error policy:
// exponential backoff from 100ms to 3s, capped at 8 attempts.
var DefaultRetryConfig = RetryConfig{
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     3 * time.Second,
	MaxAttempts:    8,
}

// Backoff returns the delay before retry attempt n (1-based: the delay
// before the second attempt is Backoff(1)).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	d := c.InitialBackoff
	for range attempt - 1 {
		d *= 2
		if d > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return d
}
