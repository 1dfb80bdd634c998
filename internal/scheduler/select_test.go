package scheduler

import (
	"testing"

	"github.com/joshua-project/joshua/internal/ensemble"
	"github.com/joshua-project/joshua/internal/kv"
)

func TestSelectCandidate_SingleCandidateAlwaysChosen(t *testing.T) {
	t.Parallel()

	only := ensemble.Candidate{ID: testID(1), Priority: 5}
	for i := 0; i < 50; i++ {
		got := selectCandidate([]ensemble.Candidate{only})
		if got != only {
			t.Fatalf("selectCandidate() = %v, want %v", got, only)
		}
	}
}

func TestSelectCandidate_WeightsTowardHigherPriority(t *testing.T) {
	t.Parallel()

	heavy := ensemble.Candidate{ID: testID(1), Priority: 990}
	light := ensemble.Candidate{ID: testID(2), Priority: 10}
	candidates := []ensemble.Candidate{heavy, light}

	const trials = 2000
	heavyCount := 0
	for i := 0; i < trials; i++ {
		if selectCandidate(candidates) == heavy {
			heavyCount++
		}
	}

	// Expected ~99%; allow generous slack so the test isn't flaky while
	// still catching a badly broken weighting (e.g. uniform selection).
	if heavyCount < trials*90/100 {
		t.Errorf("heavy candidate chosen %d/%d times, want at least 90%%", heavyCount, trials)
	}
}

func TestSelectCandidate_BothEligibleWhenEqualPriority(t *testing.T) {
	t.Parallel()

	a := ensemble.Candidate{ID: testID(1), Priority: 50}
	b := ensemble.Candidate{ID: testID(2), Priority: 50}
	candidates := []ensemble.Candidate{a, b}

	seenA, seenB := false, false
	for i := 0; i < 200; i++ {
		switch selectCandidate(candidates) {
		case a:
			seenA = true
		case b:
			seenB = true
		}
	}
	if !seenA || !seenB {
		t.Errorf("expected both equal-priority candidates to be reachable, seenA=%v seenB=%v", seenA, seenB)
	}
}

func TestSelectCandidate_PanicsOnEmpty(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty candidate list")
		}
	}()
	selectCandidate(nil)
}

func TestSelectCandidate_PanicsWhenAllNonPositive(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when no candidate has positive priority")
		}
	}()
	selectCandidate([]ensemble.Candidate{{ID: testID(1), Priority: 0}})
}

func testID(last byte) kv.Versionstamp {
	var raw [10]byte
	raw[9] = last
	return kv.Versionstamp(raw)
}
