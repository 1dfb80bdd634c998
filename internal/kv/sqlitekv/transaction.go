package sqlitekv

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"

	"github.com/joshua-project/joshua/internal/kv"
)

// transaction implements both kv.Tx and kv.ReadTx over a single *sql.Tx.
// Writes execute immediately against sqlTx so later reads within the same
// transaction observe them, matching the read-your-own-writes semantics a
// real transactional KV provides.
type transaction struct {
	ctx     context.Context
	sqlTx   *sql.Tx
	futures []*kv.VersionstampFuture
	// err latches the first write failure. kv.Tx's Set/Clear/ClearRange
	// have no error return (matching the interface other backends share),
	// so failures are reported at commit time via Store.attempt.
	err error
}

func (t *transaction) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

func (t *transaction) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := t.sqlTx.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapSQLiteErr(err)
	}
	return v, true, nil
}

func (t *transaction) Range(ctx context.Context, begin, end string, opts kv.RangeOptions) kv.RangeSeq {
	return func(yield func(kv.KV, error) bool) {
		order := "ASC"
		if opts.Reverse {
			order = "DESC"
		}
		query := fmt.Sprintf(`SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k %s`, order)
		args := []any{begin, end}
		if opts.Limit > 0 {
			query += ` LIMIT ?`
			args = append(args, opts.Limit)
		}

		rows, err := t.sqlTx.QueryContext(ctx, query, args...)
		if err != nil {
			yield(kv.KV{}, wrapSQLiteErr(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var row kv.KV
			if err := rows.Scan(&row.Key, &row.Value); err != nil {
				yield(kv.KV{}, wrapSQLiteErr(err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(kv.KV{}, wrapSQLiteErr(err))
		}
	}
}

func (t *transaction) Set(key string, value []byte) {
	if t.err != nil {
		return
	}
	if _, err := t.sqlTx.Exec(`INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, value); err != nil {
		t.fail(wrapSQLiteErr(err))
	}
}

func (t *transaction) Clear(key string) {
	if t.err != nil {
		return
	}
	if _, err := t.sqlTx.Exec(`DELETE FROM kv WHERE k = ?`, key); err != nil {
		t.fail(wrapSQLiteErr(err))
	}
}

func (t *transaction) ClearRange(begin, end string) {
	if t.err != nil {
		return
	}
	if _, err := t.sqlTx.Exec(`DELETE FROM kv WHERE k >= ? AND k < ?`, begin, end); err != nil {
		t.fail(wrapSQLiteErr(err))
	}
}

func (t *transaction) AtomicAdd(ctx context.Context, key string, delta int64) error {
	value, ok, err := t.Get(ctx, key)
	if err != nil {
		return err
	}
	var current int64
	if ok {
		if len(value) != 8 {
			return fmt.Errorf("atomic add on %s: %w: counter value is not 8 bytes", key, kv.ErrTooLarge)
		}
		current = int64(binary.LittleEndian.Uint64(value))
	}
	next := current + delta
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(next))
	t.Set(key, buf)
	return t.err
}

func (t *transaction) NewVersionstamp() *kv.VersionstampFuture {
	f := &kv.VersionstampFuture{}
	t.futures = append(t.futures, f)
	return f
}
