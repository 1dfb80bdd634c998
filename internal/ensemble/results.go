package ensemble

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/joshua-project/joshua/internal/kv"
)

// resultHeaderSize is the fixed-size header prepended to a run's output
// before chunking: 1 byte exit class + 8 bytes elapsed nanoseconds.
const resultHeaderSize = 9

// TailMode selects which results Tail yields.
type TailMode int

const (
	// TailAll yields every result.
	TailAll TailMode = iota
	// TailErrorsOnly yields only Fail results.
	TailErrorsOnly
	// TailRaw yields output bytes only, with no RunResult framing.
	TailRaw
)

// Prepare performs the Preparing state's snapshot read: it
// confirms id is still active, then reads its properties and reassembled
// package in one snapshot. If id is no longer in the active (or sanity)
// index, Prepare returns ErrNotFound so the caller abandons the pick and
// returns to Discovering without having wasted a write.
func Prepare(ctx context.Context, store kv.Store, id kv.Versionstamp, sanity bool) (Properties, []byte, error) {
	var props Properties
	var pkg []byte
	err := store.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		key := kv.ActiveKey(id)
		if sanity {
			key = kv.ActiveSanityKey(id)
		}
		_, ok, err := tx.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", id, err)
		}
		if !ok {
			return ErrNotFound
		}

		var found bool
		props, found, err = readProperties(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}

		pkg, err = readPackage(ctx, tx, id)
		return err
	})
	if err != nil {
		return Properties{}, nil, err
	}
	return props, pkg, nil
}

// ReadPackage reassembles id's package chunks in order.
func ReadPackage(ctx context.Context, store kv.Store, id kv.Versionstamp) ([]byte, error) {
	var pkg []byte
	err := store.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		var err error
		pkg, err = readPackage(ctx, tx, id)
		return err
	})
	return pkg, err
}

func readPackage(ctx context.Context, tx kv.ReadTx, id kv.Versionstamp) ([]byte, error) {
	begin, end := kv.PackageRange(id)
	var buf bytes.Buffer
	found := false
	for row, err := range tx.Range(ctx, begin, end, kv.RangeOptions{}) {
		if err != nil {
			return nil, fmt.Errorf("read package for %s: %w", id, err)
		}
		found = true
		buf.Write(row.Value)
	}
	if !found {
		return nil, ErrNotFound
	}
	return buf.Bytes(), nil
}

// PackageChecksum returns the stored SHA-256 of id's package blob, recorded
// at create time, without re-reading or re-hashing the blob itself.
func PackageChecksum(ctx context.Context, store kv.Store, id kv.Versionstamp) (string, error) {
	var sum string
	err := store.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		value, ok, err := tx.Get(ctx, kv.PropertyKey(id, keyPackageSHA256))
		if err != nil {
			return fmt.Errorf("read package checksum for %s: %w", id, err)
		}
		if !ok {
			return ErrNotFound
		}
		sum = string(value)
		return nil
	})
	return sum, err
}

// VerifyPackageChecksum reassembles id's package and reports whether its
// SHA-256 matches the checksum recorded at create time.
func VerifyPackageChecksum(ctx context.Context, store kv.Store, id kv.Versionstamp) (bool, error) {
	want, err := PackageChecksum(ctx, store, id)
	if err != nil {
		return false, err
	}
	pkg, err := ReadPackage(ctx, store, id)
	if err != nil {
		return false, err
	}
	got := sha256.Sum256(pkg)
	return hexSum(got) == want, nil
}

// SubmitResult performs the Reporting transaction: it
// appends the run's output, increments started/ended/pass-or-fail/runtime
// (and the 5-minute buckets when elapsed exceeds 5 minutes), then re-reads
// counters in the same transaction and retires id (clears both index
// entries) if a terminal condition is now met. retired reports whether
// this call observed and performed that retirement; it is safe for two
// concurrent agents to both report retired=true for the same id.
func SubmitResult(ctx context.Context, store kv.Store, id kv.Versionstamp, result RunResult) (retired bool, err error) {
	err = store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		retired = false

		if _, found, err := readProperties(ctx, tx, id); err != nil {
			return err
		} else if !found {
			// id was deleted out from under this run; writing its result now
			// would recreate subspaces Delete has already cleared.
			return nil
		}

		writeResult(tx, id, result)

		if err := tx.AtomicAdd(ctx, kv.CounterKey(id, "started"), 1); err != nil {
			return err
		}
		if err := tx.AtomicAdd(ctx, kv.CounterKey(id, "ended"), 1); err != nil {
			return err
		}
		if result.ExitClass == Pass {
			if err := tx.AtomicAdd(ctx, kv.CounterKey(id, "pass"), 1); err != nil {
				return err
			}
		} else {
			if err := tx.AtomicAdd(ctx, kv.CounterKey(id, "fail"), 1); err != nil {
				return err
			}
		}
		if err := tx.AtomicAdd(ctx, kv.CounterKey(id, "runtime"), int64(result.Elapsed)); err != nil {
			return err
		}
		if result.Elapsed > 5*time.Minute {
			bucket := "pass_5min"
			if result.ExitClass != Pass {
				bucket = "fail_5min"
			}
			if err := tx.AtomicAdd(ctx, kv.CounterKey(id, bucket), 1); err != nil {
				return err
			}
		}

		props, found, err := readProperties(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			// Checked before any write above; kept so a missing
			// properties row never reaches Terminal.
			return nil
		}
		counters, err := readCounters(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := counters.CheckInvariant(); err != nil {
			return err
		}
		if Terminal(props, counters) {
			tx.Clear(kv.ActiveKey(id))
			tx.Clear(kv.ActiveSanityKey(id))
			retired = true
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("submit result for %s: %w", id, err)
	}
	return retired, nil
}

func writeResult(tx kv.Tx, id kv.Versionstamp, result RunResult) {
	header := make([]byte, resultHeaderSize)
	header[0] = byte(result.ExitClass)
	binary.LittleEndian.PutUint64(header[1:], uint64(result.Elapsed))

	framed := append(header, result.Output...)
	chunks := chunk(framed, DefaultChunkSize)
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}
	for seq, c := range chunks {
		tx.Set(kv.ResultKey(id, result.RunToken, seq), c)
	}
}

// Tail reassembles every run result of id and returns them sorted by
// completion order, reversed (most recent first) unless mode is TailRaw,
// in which case only the concatenated output bytes of each run are
// returned, oldest first, matching how a client streams a raw log tail.
// Results are read from one snapshot; a caller that wants a live tail
// should poll Tail again or drive it from store.Watch on the results range.
func Tail(ctx context.Context, store kv.Store, id kv.Versionstamp, mode TailMode) ([]RunResult, error) {
	var results []RunResult
	err := store.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		begin, end := kv.ResultsRange(id)
		runs := map[[16]byte]*bytes.Buffer{}
		var order [][16]byte
		for row, err := range tx.Range(ctx, begin, end, kv.RangeOptions{}) {
			if err != nil {
				return fmt.Errorf("tail %s: %w", id, err)
			}
			token, err := runTokenFromResultKey(row.Key)
			if err != nil {
				return fmt.Errorf("tail %s: %w", id, err)
			}
			buf, ok := runs[token]
			if !ok {
				buf = &bytes.Buffer{}
				runs[token] = buf
				order = append(order, token)
			}
			buf.Write(row.Value)
		}

		for _, token := range order {
			raw := runs[token].Bytes()
			if len(raw) < resultHeaderSize {
				continue
			}
			r := RunResult{
				RunToken:  token,
				ExitClass: ExitClass(raw[0]),
				Elapsed:   time.Duration(binary.LittleEndian.Uint64(raw[1:resultHeaderSize])),
				Output:    raw[resultHeaderSize:],
			}
			if mode == TailErrorsOnly && r.ExitClass == Pass {
				continue
			}
			if mode == TailRaw {
				r = RunResult{Output: r.Output}
			}
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if mode != TailRaw {
		sort.SliceStable(results, func(i, j int) bool {
			return bytes.Compare(results[i].RunToken[:], results[j].RunToken[:]) > 0
		})
	}
	return results, nil
}

func runTokenFromResultKey(key string) ([16]byte, error) {
	rest := key[len(kv.ResultsPrefix):]
	// rest is "<id>/<run_token_hex>/<seq_hex>"; skip the id segment.
	idEnd := indexByte(rest, '/')
	if idEnd < 0 {
		return [16]byte{}, fmt.Errorf("malformed result key %q", key)
	}
	rest = rest[idEnd+1:]
	tokEnd := indexByte(rest, '/')
	if tokEnd != 32 {
		return [16]byte{}, fmt.Errorf("malformed result key %q", key)
	}
	var token [16]byte
	if _, err := decodeHexInto(token[:], rest[:tokEnd]); err != nil {
		return [16]byte{}, fmt.Errorf("malformed result key %q: %w", key, err)
	}
	return token, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func decodeHexInto(dst []byte, s string) (int, error) {
	if len(s) != len(dst)*2 {
		return 0, fmt.Errorf("expected %d hex chars, got %d", len(dst)*2, len(s))
	}
	for i := range dst {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return 0, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return 0, err
		}
		dst[i] = hi<<4 | lo
	}
	return len(dst), nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", c)
	}
}
