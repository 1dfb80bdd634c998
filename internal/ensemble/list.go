package ensemble

import (
	"context"
	"fmt"
	"sort"

	"github.com/joshua-project/joshua/internal/kv"
)

// Summary is one row of a List result: an ensemble id plus its properties
// and counters, read as of the same snapshot.
type Summary struct {
	ID         kv.Versionstamp
	Properties Properties
	Counters   Counters
}

// ListSort selects the order List returns summaries in. It is applied to
// each page after Cursor/Limit have cut it, so pagination itself always
// walks rows in ascending id order regardless of Sort.
type ListSort uint8

const (
	// SortByID orders summaries by ascending ensemble id (submission
	// order); the default, and the order the underlying index/properties
	// scan already produces.
	SortByID ListSort = iota
	// SortByUsername orders summaries by owner username, then by
	// ascending id within an owner.
	SortByUsername
)

// ListFilter narrows List's result set.
type ListFilter struct {
	// Sanity selects the sanity index instead of the default active index.
	// Ignored when Stopped is set.
	Sanity bool
	// Stopped lists retired ensembles instead of active ones: ensembles
	// whose properties still exist but which have been removed from both
	// the active and sanity indexes. There is no dedicated stopped index;
	// this scans the properties subspace and excludes anything still
	// indexed.
	Stopped bool
	// Username, when non-empty, restricts results to that owner.
	Username string
	// Sort selects the order summaries are returned in. Zero value is
	// SortByID.
	Sort ListSort
	// Cursor resumes a previous List call: pass the Cursor of the last
	// Page returned, or the zero value to start from the beginning.
	Cursor kv.Versionstamp
	// Limit caps the number of rows returned; 0 means unbounded (reads
	// the whole index in one snapshot).
	Limit int
}

// Page is one page of a List call.
type Page struct {
	Summaries []Summary
	// Cursor, when non-zero, is passed as the next call's Cursor to
	// continue listing where this page left off.
	Cursor kv.Versionstamp
	// More reports whether additional rows exist beyond Cursor.
	More bool
}

// List reads one snapshot of either the active/sanity index (the default)
// or, when filter.Stopped is set, every retired ensemble, and the
// properties/counters of each matching row.
func List(ctx context.Context, store kv.Store, filter ListFilter) (Page, error) {
	var page Page
	err := store.Snapshot(ctx, func(ctx context.Context, tx kv.ReadTx) error {
		var err error
		if filter.Stopped {
			page, err = listStopped(ctx, tx, filter)
		} else {
			page, err = listActive(ctx, tx, filter)
		}
		return err
	})
	if err != nil {
		return Page{}, err
	}
	if filter.Sort == SortByUsername {
		sortByUsername(page.Summaries)
	}
	return page, nil
}

// listActive reads one snapshot of the active (or sanity) index and the
// properties/counters of each matching ensemble. Rows are read in index
// key order (ascending id), the same order a range scan of the index
// naturally gives, so Cursor-based pagination never skips or repeats a row
// even as ensembles are concurrently created or deleted.
func listActive(ctx context.Context, tx kv.ReadTx, filter ListFilter) (Page, error) {
	prefix := kv.ActivePrefix
	if filter.Sanity {
		prefix = kv.ActiveSanityPrefix
	}
	begin, end := prefix, kv.PrefixEnd(prefix)
	if !filter.Cursor.IsZero() {
		begin = prefix + kv.PrefixEnd(filter.Cursor.String())
	}

	var page Page
	var summaries []Summary
	for row, err := range tx.Range(ctx, begin, end, kv.RangeOptions{}) {
		if err != nil {
			return Page{}, fmt.Errorf("list ensembles: %w", err)
		}
		id, err := kv.IDFromIndexKey(prefix, row.Key)
		if err != nil {
			return Page{}, fmt.Errorf("list ensembles: %w", err)
		}

		props, found, err := readProperties(ctx, tx, id)
		if err != nil {
			return Page{}, err
		}
		if !found {
			// Index entry survived a concurrent delete racing this
			// snapshot; skip rather than fail the whole listing.
			continue
		}
		if filter.Username != "" && props.Username != filter.Username {
			continue
		}

		counters, err := readCounters(ctx, tx, id)
		if err != nil {
			return Page{}, err
		}

		summaries = append(summaries, Summary{ID: id, Properties: props, Counters: counters})
		if filter.Limit > 0 && len(summaries) > filter.Limit {
			page.More = true
			summaries = summaries[:filter.Limit]
			break
		}
	}

	if len(summaries) > 0 {
		page.Cursor = summaries[len(summaries)-1].ID
	}
	page.Summaries = summaries
	return page, nil
}

// listStopped scans the properties subspace — the complement of the active
// and sanity indexes — for ensembles that have been stopped but not
// deleted. Unlike listActive this can't resume from a single index range
// scan key-for-key, since a retired ensemble's identity lives only in its
// properties rows: it walks the properties subspace in id order, collapsing
// the several rows each id contributes, and checks every candidate id's
// absence from both indexes before including it.
func listStopped(ctx context.Context, tx kv.ReadTx, filter ListFilter) (Page, error) {
	begin, end := kv.PropertiesPrefix, kv.PrefixEnd(kv.PropertiesPrefix)
	if !filter.Cursor.IsZero() {
		begin = kv.PropertiesPrefix + kv.PrefixEnd(filter.Cursor.String())
	}

	var page Page
	var summaries []Summary
	var lastID kv.Versionstamp
	haveLastID := false
	for row, err := range tx.Range(ctx, begin, end, kv.RangeOptions{}) {
		if err != nil {
			return Page{}, fmt.Errorf("list stopped ensembles: %w", err)
		}
		id, err := kv.IDFromPropertyKey(row.Key)
		if err != nil {
			return Page{}, fmt.Errorf("list stopped ensembles: %w", err)
		}
		if haveLastID && id == lastID {
			continue
		}
		lastID, haveLastID = id, true

		_, activeOK, err := tx.Get(ctx, kv.ActiveKey(id))
		if err != nil {
			return Page{}, err
		}
		_, sanityOK, err := tx.Get(ctx, kv.ActiveSanityKey(id))
		if err != nil {
			return Page{}, err
		}
		if activeOK || sanityOK {
			continue
		}

		props, found, err := readProperties(ctx, tx, id)
		if err != nil {
			return Page{}, err
		}
		if !found {
			continue
		}
		if filter.Username != "" && props.Username != filter.Username {
			continue
		}

		counters, err := readCounters(ctx, tx, id)
		if err != nil {
			return Page{}, err
		}

		summaries = append(summaries, Summary{ID: id, Properties: props, Counters: counters})
		if filter.Limit > 0 && len(summaries) > filter.Limit {
			page.More = true
			summaries = summaries[:filter.Limit]
			break
		}
	}

	if len(summaries) > 0 {
		page.Cursor = summaries[len(summaries)-1].ID
	}
	page.Summaries = summaries
	return page, nil
}

func sortByUsername(summaries []Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Properties.Username != summaries[j].Properties.Username {
			return summaries[i].Properties.Username < summaries[j].Properties.Username
		}
		return summaries[i].ID.Less(summaries[j].ID)
	})
}
