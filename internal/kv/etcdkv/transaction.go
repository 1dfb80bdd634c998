package etcdkv

import (
	"context"
	"encoding/binary"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/joshua-project/joshua/internal/kv"
)

// transaction implements kv.Tx (and kv.ReadTx) over a live etcd client. Reads
// go straight to etcd; writes are buffered as clientv3.Op values and applied
// only if every tracked read's mod-revision still holds at commit time (see
// Store.attempt).
type transaction struct {
	ctx           context.Context
	cli           *clientv3.Client
	reads         map[string]int64 // key -> mod revision observed during this attempt
	ops           []clientv3.Op
	futures       []*kv.VersionstampFuture
	reservedNonce bool // versionstampNonceKey already queued this attempt
	err           error
}

// versionstampNonceKey is blind-written once by NewVersionstamp, guaranteeing
// the commit bumps etcd's global revision even when the transaction has no
// other Put/Delete — an etcd Txn with an empty Then() never advances the
// store's MVCC revision, so a reservation-only transaction would otherwise
// commit against an unchanged revision and mint a duplicate id. This mirrors
// sqlitekv's vs_seq counter row, which the same kind of transaction updates
// unconditionally for the same reason.
const versionstampNonceKey = "_etcdkv/vs_nonce"

func (t *transaction) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

func (t *transaction) observe(key string, modRevision int64) {
	t.reads[key] = modRevision
}

func (t *transaction) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := t.cli.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("etcdkv: get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		t.observe(key, 0)
		return nil, false, nil
	}
	kvPair := resp.Kvs[0]
	t.observe(key, kvPair.ModRevision)
	return kvPair.Value, true, nil
}

func (t *transaction) Range(ctx context.Context, begin, end string, opts kv.RangeOptions) kv.RangeSeq {
	return func(yield func(kv.KV, error) bool) {
		etcdOpts := []clientv3.OpOption{clientv3.WithRange(end)}
		if opts.Reverse {
			etcdOpts = append(etcdOpts, clientv3.WithSort(clientv3.SortByKey, clientv3.SortDescend))
		}
		if opts.Limit > 0 {
			etcdOpts = append(etcdOpts, clientv3.WithLimit(int64(opts.Limit)))
		}

		resp, err := t.cli.Get(ctx, begin, etcdOpts...)
		if err != nil {
			yield(kv.KV{}, fmt.Errorf("etcdkv: range %s..%s: %w", begin, end, err))
			return
		}
		for _, kvPair := range resp.Kvs {
			t.observe(string(kvPair.Key), kvPair.ModRevision)
			if !yield(kv.KV{Key: string(kvPair.Key), Value: kvPair.Value}, nil) {
				return
			}
		}
	}
}

func (t *transaction) Set(key string, value []byte) {
	t.ops = append(t.ops, clientv3.OpPut(key, string(value)))
}

func (t *transaction) Clear(key string) {
	t.ops = append(t.ops, clientv3.OpDelete(key))
}

func (t *transaction) ClearRange(begin, end string) {
	t.ops = append(t.ops, clientv3.OpDelete(begin, clientv3.WithRange(end)))
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
	return nil
}

func (t *transaction) NewVersionstamp() *kv.VersionstampFuture {
	f := &kv.VersionstampFuture{}
	t.futures = append(t.futures, f)
	if !t.reservedNonce {
		t.reservedNonce = true
		t.ops = append(t.ops, clientv3.OpPut(versionstampNonceKey, ""))
	}
	return f
}
