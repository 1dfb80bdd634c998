//go:build integration

package etcdkv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joshua-project/joshua/internal/kv"
)

// openIntegrationStore dials the etcd cluster named by
// JOSHUA_TEST_ETCD_ENDPOINTS (a comma-separated endpoint list), skipping the
// test cleanly if the variable is unset. Every key written by a test is
// confined to a random-prefixed subspace the test cleans up itself, so
// concurrent test binaries (and repeat runs) never collide with each other
// on a shared cluster.
func openIntegrationStore(t *testing.T) (*Store, string) {
	t.Helper()
	endpoints := os.Getenv("JOSHUA_TEST_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("JOSHUA_TEST_ETCD_ENDPOINTS not set, skipping etcd integration test")
	}

	store, err := Open(Config{
		Endpoints:   strings.Split(endpoints, ","),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	prefix := fmt.Sprintf("joshua-integration-test/%d/", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
			tx.ClearRange(prefix, kv.PrefixEnd(prefix))
			return nil
		})
	})
	return store, prefix
}

func TestIntegration_SetGetRoundTrip(t *testing.T) {
	t.Parallel()
	store, prefix := openIntegrationStore(t)
	ctx := context.Background()

	key := prefix + "k"
	err := store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		tx.Set(key, []byte("v1"))
		return nil
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}

	var got []byte
	err = store.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		value, ok, err := tx.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("key %s not found", key)
		}
		got = value
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("got %q, want %q", got, "v1")
	}
}

// TestIntegration_ConcurrentReservationsNeverCollide races N goroutines,
// each reserving a versionstamp in its own otherwise-empty transaction (the
// same shape internal/ensemble.Create uses to mint an ensemble id), and
// asserts every resolved versionstamp is distinct. This is the scenario
// that previously collided: an etcd commit whose Then() held no mutating
// op left the cluster's global revision unchanged, so two concurrent
// reservations could read and commit against the same revision and mint
// the same id. NewVersionstamp now queues a blind Put to force the revision
// to advance on every such commit.
func TestIntegration_ConcurrentReservationsNeverCollide(t *testing.T) {
	t.Parallel()
	store, _ := openIntegrationStore(t)
	ctx := context.Background()

	const n = 20
	ids := make([]kv.Versionstamp, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var f *kv.VersionstampFuture
			errs[i] = store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
				f = tx.NewVersionstamp()
				return nil
			})
			if errs[i] == nil {
				vs, ok := f.Get()
				if !ok {
					errs[i] = fmt.Errorf("reservation %d: future unresolved after successful commit", i)
					return
				}
				ids[i] = vs
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("reservation %d: %v", i, err)
		}
	}

	seen := make(map[kv.Versionstamp]int, n)
	for i, id := range ids {
		if prev, ok := seen[id]; ok {
			t.Fatalf("reservation %d and %d minted the same versionstamp %s", prev, i, id)
		}
		seen[id] = i
	}
}

func TestIntegration_ConflictingWritesRetryAndSucceed(t *testing.T) {
	t.Parallel()
	store, prefix := openIntegrationStore(t)
	ctx := context.Background()

	key := prefix + "counter"
	err := store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		return tx.AtomicAdd(ctx, key, 0)
	})
	if err != nil {
		t.Fatalf("seed Transact: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
				return tx.AtomicAdd(ctx, key, 1)
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	var got []byte
	err = store.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		value, ok, err := tx.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("key %s not found", key)
		}
		got = value
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(got) != 8 {
		t.Fatalf("counter value is %d bytes, want 8", len(got))
	}
}
