package ensemble

import (
	"context"
	"fmt"

	"github.com/joshua-project/joshua/internal/kv"
)

// ActiveCount returns the number of ids currently in the active (or
// sanity) index, the single number the autoscaler interface reads
//.
func ActiveCount(ctx context.Context, store kv.Store, sanity bool) (int, error) {
	prefix := kv.ActivePrefix
	if sanity {
		prefix = kv.ActiveSanityPrefix
	}
	begin, end := prefix, kv.PrefixEnd(prefix)

	count := 0
	err := store.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		for _, err := range tx.Range(ctx, begin, end, kv.RangeOptions{}) {
			if err != nil {
				return fmt.Errorf("active count: %w", err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Candidate is one schedulable ensemble, as read by the Selecting state
//.
type Candidate struct {
	ID       kv.Versionstamp
	Priority int
}

// ListActive returns every id currently in the active (or sanity) index
// with a positive effective priority, in index (ascending id) order. The
// scheduler's Selecting state performs weighted random sampling over this
// list; ids with Priority <= 0 are never eligible and are omitted here.
func ListActive(ctx context.Context, store kv.Store, sanity bool) ([]Candidate, error) {
	prefix := kv.ActivePrefix
	if sanity {
		prefix = kv.ActiveSanityPrefix
	}
	begin, end := prefix, kv.PrefixEnd(prefix)

	var candidates []Candidate
	err := store.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		for row, err := range tx.Range(ctx, begin, end, kv.RangeOptions{}) {
			if err != nil {
				return fmt.Errorf("list active: %w", err)
			}
			id, err := kv.IDFromIndexKey(prefix, row.Key)
			if err != nil {
				return fmt.Errorf("list active: %w", err)
			}
			props, found, err := readProperties(ctx, tx, id)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			priority := props.EffectivePriority()
			if priority <= 0 {
				continue
			}
			candidates = append(candidates, Candidate{ID: id, Priority: priority})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}
