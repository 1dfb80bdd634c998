package scheduler

import (
	"math/rand/v2"

	"github.com/joshua-project/joshua/internal/ensemble"
)

// selectCandidate performs weighted random sampling over candidates: the
// probability of choosing candidate i is Priority_i / Σ Priority_j.
// candidates must be in KV natural (ascending
// id) order, as ensemble.ListActive returns them; iterating in that order
// gives deterministic, reproducible boundaries for the cumulative-weight
// walk, and reduces to uniform selection when all priorities are equal
// (the tie-breaking note). Panics if candidates is empty or every
// priority is non-positive — callers only invoke this after confirming at
// least one eligible candidate exists.
func selectCandidate(candidates []ensemble.Candidate) ensemble.Candidate {
	total := 0
	for _, c := range candidates {
		total += c.Priority
	}
	if len(candidates) == 0 || total <= 0 {
		panic("scheduler: selectCandidate requires at least one candidate with positive priority")
	}

	r := rand.IntN(total)
	cum := 0
	for _, c := range candidates {
		cum += c.Priority
		if r < cum {
			return c
		}
	}
	// Unreachable given r < total, kept as a defensive fallback.
	return candidates[len(candidates)-1]
}
