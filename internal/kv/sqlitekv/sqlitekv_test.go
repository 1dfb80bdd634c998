package sqlitekv

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/joshua-project/joshua/internal/kv"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SetGet(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	err := s.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		tx.Set("foo", []byte("bar"))
		return nil
	})
	if err != nil {
		t.Fatalf("Transact(set): %v", err)
	}

	err = s.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		v, ok, err := tx.Get(ctx, "foo")
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("expected key to be found")
		}
		if string(v) != "bar" {
			t.Fatalf("got %q, want %q", v, "bar")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot(get): %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	err := s.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		_, ok, err := tx.Get(ctx, "missing")
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("expected key to be missing")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
}

func TestStore_RangeOrder(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	keys := []string{"a", "b", "c", "d"}
	err := s.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		for _, k := range keys {
			tx.Set(k, []byte(k))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transact(seed): %v", err)
	}

	t.Run("ascending", func(t *testing.T) {
		t.Parallel()
		var got []string
		err := s.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
			for row, err := range tx.Range(ctx, "a", "z", kv.RangeOptions{}) {
				if err != nil {
					return err
				}
				got = append(got, row.Key)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		want := []string{"a", "b", "c", "d"}
		if !equalStrings(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("reverse with limit", func(t *testing.T) {
		t.Parallel()
		var got []string
		err := s.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
			for row, err := range tx.Range(ctx, "a", "z", kv.RangeOptions{Reverse: true, Limit: 2}) {
				if err != nil {
					return err
				}
				got = append(got, row.Key)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		want := []string{"d", "c"}
		if !equalStrings(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

func TestStore_ClearAndClearRange(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	err := s.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		tx.Set("a", []byte("1"))
		tx.Set("b", []byte("2"))
		tx.Set("c", []byte("3"))
		return nil
	})
	if err != nil {
		t.Fatalf("Transact(seed): %v", err)
	}

	err = s.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		tx.Clear("a")
		tx.ClearRange("b", "c\x00")
		return nil
	})
	if err != nil {
		t.Fatalf("Transact(clear): %v", err)
	}

	err = s.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		var got []string
		for row, err := range tx.Range(ctx, "a", "z", kv.RangeOptions{}) {
			if err != nil {
				return err
			}
			got = append(got, row.Key)
		}
		if len(got) != 0 {
			t.Fatalf("expected all keys cleared, got %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
}

func TestStore_AtomicAdd(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := s.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
			return tx.AtomicAdd(ctx, "counter", 3)
		})
		if err != nil {
			t.Fatalf("Transact(add): %v", err)
		}
	}

	err := s.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		v, ok, err := tx.Get(ctx, "counter")
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("expected counter key to exist")
		}
		if len(v) != 8 {
			t.Fatalf("expected 8-byte counter value, got %d bytes", len(v))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
}

func TestStore_NewVersionstampMonotonic(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	var versionstamps []kv.Versionstamp
	for i := 0; i < 3; i++ {
		var f *kv.VersionstampFuture
		err := s.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
			f = tx.NewVersionstamp()
			return nil
		})
		if err != nil {
			t.Fatalf("Transact: %v", err)
		}
		vs, ok := f.Get()
		if !ok {
			t.Fatal("expected future to be resolved after commit")
		}
		versionstamps = append(versionstamps, vs)
	}

	for i := 1; i < len(versionstamps); i++ {
		if !versionstamps[i-1].Less(versionstamps[i]) {
			t.Fatalf("expected versionstamp %d < %d, got %v >= %v", i-1, i, versionstamps[i-1], versionstamps[i])
		}
	}
}

func TestStore_TransactRollsBackOnError(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		tx.Set("doomed", []byte("x"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}

	err = s.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		_, ok, err := tx.Get(ctx, "doomed")
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("expected rolled-back write to not be visible")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
}

func TestIsConflict(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{kv.ErrConflict, true},
		{fmt.Errorf("wrapped: %w", kv.ErrConflict), true},
		{errors.New("database is locked"), true},
		{errors.New("database is busy"), true},
		{errors.New("no such table: kv"), false},
	}
	for _, c := range cases {
		if got := isConflict(c.err); got != c.want {
			t.Errorf("isConflict(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestWrapSQLiteErr(t *testing.T) {
	t.Parallel()

	if wrapSQLiteErr(nil) != nil {
		t.Error("wrapSQLiteErr(nil) should return nil")
	}

	locked := errors.New("database is locked")
	wrapped := wrapSQLiteErr(locked)
	if !errors.Is(wrapped, kv.ErrConflict) {
		t.Errorf("wrapSQLiteErr(%v) = %v, want it to wrap kv.ErrConflict", locked, wrapped)
	}

	other := errors.New("no such table: kv")
	if got := wrapSQLiteErr(other); got != other {
		t.Errorf("wrapSQLiteErr(%v) = %v, want unchanged", other, got)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
