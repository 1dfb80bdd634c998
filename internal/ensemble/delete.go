package ensemble

import (
	"context"
	"fmt"

	"github.com/joshua-project/joshua/internal/kv"
)

// Delete permanently removes every trace of id: properties, counters,
// package chunks, results, and both index entries. Delete is
// idempotent; deleting a nonexistent id succeeds.
//
// The five subspaces are cleared in one transaction. A very large ensemble
// (many results/package chunks) can in principle exceed one transaction's
// write budget; Delete then returns the backend's error and clears
// nothing, since the clear is never split across transactions.
func Delete(ctx context.Context, store kv.Store, id kv.Versionstamp) error {
	err := store.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		clearEnsembleSubspaces(tx, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete ensemble %s: %w", id, err)
	}
	return nil
}

func clearEnsembleSubspaces(tx kv.Tx, id kv.Versionstamp) {
	propBegin, propEnd := kv.PropertiesRange(id)
	tx.ClearRange(propBegin, propEnd)

	ctrBegin, ctrEnd := kv.CountersRange(id)
	tx.ClearRange(ctrBegin, ctrEnd)

	pkgBegin, pkgEnd := kv.PackageRange(id)
	tx.ClearRange(pkgBegin, pkgEnd)

	resBegin, resEnd := kv.ResultsRange(id)
	tx.ClearRange(resBegin, resEnd)

	tx.Clear(kv.ActiveKey(id))
	tx.Clear(kv.ActiveSanityKey(id))
}
