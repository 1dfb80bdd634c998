package ensemble

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/joshua-project/joshua/internal/kv"
)

// stopByUsernameConcurrency bounds how many Stop transactions
// StopByUsername runs at once.
const stopByUsernameConcurrency = 10

// Stop removes id from the active and sanity indexes, making it ineligible
// for future scheduling, without touching its properties, counters, package,
// or results ("stop is index removal, not deletion"). Stop is
// idempotent: stopping an already-stopped or nonexistent id succeeds.
func Stop(ctx context.Context, store kv.Store, id kv.Versionstamp) error {
	err := store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		tx.Clear(kv.ActiveKey(id))
		tx.Clear(kv.ActiveSanityKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("stop ensemble %s: %w", id, err)
	}
	return nil
}

// StopByUsername stops every active (or, if sanity is set, every sanity)
// ensemble owned by username, returning the number of ensembles stopped
// ("stop can target a single id or every ensemble of a
// username").
func StopByUsername(ctx context.Context, store kv.Store, username string, sanity bool) (int, error) {
	page, err := List(ctx, store, ListFilter{Sanity: sanity, Username: username})
	if err != nil {
		return 0, fmt.Errorf("stop ensembles for %s: %w", username, err)
	}

	var stopped atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(stopByUsernameConcurrency)
	for _, s := range page.Summaries {
		id := s.ID
		g.Go(func() error {
			if err := Stop(gCtx, store, id); err != nil {
				return err
			}
			stopped.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(stopped.Load()), err
	}
	return int(stopped.Load()), nil
}
