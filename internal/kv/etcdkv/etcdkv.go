// Package etcdkv implements internal/kv.Store over etcd via
// go.etcd.io/etcd/client/v3, the production backend for a fleet of agents
// spread across many machines with no shared memory.
//
// FoundationDB gives transactions native atomic-add and a commit
// versionstamp for free; etcd does not. This backend recovers both with an
// optimistic compare-and-swap transaction: every key a Tx reads is compared
// against its observed mod-revision at commit time (an etcd analogue of
// FoundationDB's conflict ranges), and the commit versionstamp is derived
// from the etcd transaction's resulting global revision. A losing compare
// surfaces as kv.ErrConflict, which Store.Transact retries exactly like the
// sqlite backend's "database is locked" condition.
package etcdkv

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/joshua-project/joshua/internal/kv"
)

// Config configures the etcd backend.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
}

// Open dials an etcd cluster and returns a kv.Store backed by it.
func Open(cfg Config) (*Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcdkv: at least one endpoint is required")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("etcdkv: dial %v: %w", cfg.Endpoints, err)
	}
	return &Store{cli: cli, retry: kv.DefaultRetryConfig}, nil
}

// Store is a kv.Store backed by an etcd cluster.
type Store struct {
	cli   *clientv3.Client
	retry kv.RetryConfig
}

var _ kv.Store = (*Store)(nil)

// Close closes the underlying etcd client connection.
func (s *Store) Close() error {
	return s.cli.Close()
}

// Transact implements kv.Store.Transact with the optimistic CAS scheme
// described in the package doc comment.
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

		ok, err := s.attempt(ctx, fn)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		lastErr = kv.ErrConflict
	}
	return fmt.Errorf("%w: exhausted %d attempts: %v", kv.ErrConflict, s.retry.MaxAttempts, lastErr)
}

// attempt runs fn once and tries to commit. ok is true if the commit
// succeeded (fn's effects are now durable); ok is false only on a lost
// compare (a genuine conflict, always retryable). Any other error is
// returned directly and is not retried.
func (s *Store) attempt(ctx context.Context, fn func(ctx context.Context, tx kv.Tx) error) (ok bool, err error) {
	tx := &transaction{ctx: ctx, cli: s.cli, reads: map[string]int64{}}

	if err := fn(ctx, tx); err != nil {
		return false, err
	}
	if tx.err != nil {
		return false, tx.err
	}

	cmps := make([]clientv3.Cmp, 0, len(tx.reads))
	for key, rev := range tx.reads {
		cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(key), "=", rev))
	}

	txn := s.cli.Txn(ctx).If(cmps...).Then(tx.ops...)
	resp, err := txn.Commit()
	if err != nil {
		return false, fmt.Errorf("etcdkv: commit: %w", err)
	}
	if !resp.Succeeded {
		return false, nil
	}

	if len(tx.futures) > 0 {
		vs := versionstampFromRevision(resp.Header.Revision)
		for _, f := range tx.futures {
			kv.ResolveVersionstampFuture(f, vs)
		}
	}
	return true, nil
}

// versionstampFromRevision encodes etcd's global revision counter the same
// way sqlitekv encodes its local sequence: an 8-byte big-endian integer in
// the low-order bytes of the 10-byte versionstamp.
func versionstampFromRevision(rev int64) kv.Versionstamp {
	var vs kv.Versionstamp
	binary.BigEndian.PutUint64(vs[2:], uint64(rev))
	return vs
}

// Snapshot implements kv.Store.Snapshot as a set of linearized reads against
// the current revision, with no compare/commit step.
func (s *Store) Snapshot(ctx context.Context, fn func(ctx context.Context, tx kv.ReadTx) error) error {
	tx := &transaction{ctx: ctx, cli: s.cli, reads: map[string]int64{}}
	return fn(ctx, tx)
}

// Watch blocks until a change occurs in [begin, end) or ctx is canceled.
func (s *Store) Watch(ctx context.Context, begin, end string) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wch := s.cli.Watch(watchCtx, begin, clientv3.WithRange(end))
	select {
	case resp, ok := <-wch:
		if !ok {
			return nil
		}
		return resp.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
