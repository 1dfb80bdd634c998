package ensemble

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/joshua-project/joshua/internal/kv"
)

// maxChunksPerTxn bounds how many ~100KiB package chunks one transaction
// writes, keeping each attempt comfortably under a backend's per-commit
// size budget while still writing large packages in few round trips.
const maxChunksPerTxn = 32

// Create reserves an ensemble id, writes the chunked package blob, and
// installs properties, zeroed counters, and the active (or sanity) index
// entry, all in the final transaction — so a concurrent reader never
// observes a partially-installed ensemble.
//
// A versionstamp only becomes known once the transaction that creates it
// commits, so Create first reserves the id in its own transaction, then
// writes package chunks and properties in one or more follow-up
// transactions keyed by the now-known id. If packageBytes is small enough
// to fit in one transaction alongside the property/counter/index writes,
// only two transactions are used: the reservation, then everything else.
func Create(ctx context.Context, store kv.Store, props Properties, packageBytes []byte) (kv.Versionstamp, error) {
	props = props.Normalize()

	var id kv.Versionstamp
	err := store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		f := tx.NewVersionstamp()
		defer func() {
			if v, ok := f.Get(); ok {
				id = v
			}
		}()
		return nil
	})
	if err != nil {
		return kv.Versionstamp{}, fmt.Errorf("create ensemble (reserve id): %w", err)
	}

	chunks := chunk(packageBytes, DefaultChunkSize)
	sum := sha256.Sum256(packageBytes)

	if len(chunks) <= maxChunksPerTxn {
		err := store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
			for i, c := range chunks {
				tx.Set(kv.PackageChunkKey(id, i), c)
			}
			installEnsemble(tx, id, props, len(chunks), sum)
			return nil
		})
		if err != nil {
			return kv.Versionstamp{}, fmt.Errorf("create ensemble: %w", err)
		}
		return id, nil
	}

	for start := 0; start < len(chunks); start += maxChunksPerTxn {
		end := min(start+maxChunksPerTxn, len(chunks))
		final := end == len(chunks)
		err := store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
			for i := start; i < end; i++ {
				tx.Set(kv.PackageChunkKey(id, i), chunks[i])
			}
			if final {
				installEnsemble(tx, id, props, len(chunks), sum)
			}
			return nil
		})
		if err != nil {
			return kv.Versionstamp{}, fmt.Errorf("create ensemble (chunk batch %d-%d): %w", start, end, err)
		}
	}
	return id, nil
}

// installEnsemble writes properties, the package checksum/chunk-count
// properties, zeroed counters, and the active-index entry for id. Callers
// must do this as the last write of the final transaction of Create.
func installEnsemble(tx kv.Tx, id kv.Versionstamp, props Properties, chunkCount int, sum [32]byte) {
	writeProperties(tx, id, props)
	tx.Set(kv.PropertyKey(id, keyPackageSHA256), []byte(hexSum(sum)))
	tx.Set(kv.PropertyKey(id, keyPackageChunks), encodeInt(chunkCount))

	zero := make([]byte, 8)
	for _, name := range counterNames {
		tx.Set(kv.CounterKey(id, name), zero)
	}

	if props.Sanity {
		tx.Set(kv.ActiveSanityKey(id), []byte{})
	} else {
		tx.Set(kv.ActiveKey(id), []byte{})
	}
}

func encodeInt(n int) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return buf
}

func hexSum(sum [32]byte) string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, 64)
	for i, b := range sum {
		buf[i*2] = hexdigits[b>>4]
		buf[i*2+1] = hexdigits[b&0xf]
	}
	return string(buf)
}

func chunk(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var out [][]byte
	for i := 0; i < len(data); i += size {
		end := min(i+size, len(data))
		out = append(out, data[i:end])
	}
	return out
}
