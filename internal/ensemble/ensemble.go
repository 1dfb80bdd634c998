// Package ensemble implements the Ensemble Model API: the
// transactional operations over internal/kv that create, list, stop,
// delete, and tail ensembles, plus the acquire-run/submit-result operations
// the agent scheduler drives.
//
// Properties and counters are closed Go structs with a named field per
// recognized key, per the "dynamic reflection over returned rows"
// redesign note — the set of recognized keys is closed and rarely changes,
// so there is no value in decoding rows into a dynamic map at read time.
package ensemble

import (
	"time"

	"github.com/joshua-project/joshua/internal/kv"
	"github.com/joshua-project/joshua/internal/sentinel"
)

// Sentinel errors.
const (
	// ErrNotFound is returned when an ensemble id does not exist.
	ErrNotFound = kv.ErrNotFound

	// ErrConflict is returned when the KV transport signalled a retryable
	// commit conflict after internal retries were exhausted.
	ErrConflict = kv.ErrConflict

	// ErrTooLarge is returned when a single property or write exceeds the
	// KV transaction budget.
	ErrTooLarge = kv.ErrTooLarge

	// ErrInvariantViolation is returned when counters are observed
	// inconsistent with ended == pass + fail. This is fatal: callers must
	// abort rather than mask it.
	ErrInvariantViolation = sentinel.Error("ensemble: counter invariant violated")
)

// DefaultChunkSize is the size of each package blob chunk, kept well under
// a single transaction's value-size limit.
const DefaultChunkSize = 100 * 1024

// DefaultOutputCap is the default cap on captured run output.
const DefaultOutputCap = 10 * 1024 * 1024

// DefaultPriority is the scheduling weight used when a Properties value
// does not set Priority explicitly.
const DefaultPriority = 100

// ExitClass classifies the outcome of one run.
type ExitClass uint8

const (
	// Pass indicates the test process exited 0 before the timeout fired.
	Pass ExitClass = iota
	// Fail indicates any other outcome: non-zero exit, timeout, signal, or
	// spawn failure.
	Fail
)

// String implements fmt.Stringer.
func (c ExitClass) String() string {
	if c == Pass {
		return "pass"
	}
	return "fail"
}

// Properties are the immutable, client-supplied settings of an ensemble
//. The zero value is valid except where noted; Normalize
// fills in defaults.
type Properties struct {
	// MaxRuns: terminal when Ended >= MaxRuns. 0 means unbounded.
	MaxRuns int
	// FailFast: terminal when Fail >= FailFast. 0 disables.
	FailFast int
	// Timeout is the per-run wall-clock limit. Must be > 0.
	Timeout time.Duration
	// Priority is the scheduling weight. Non-positive values make the
	// ensemble ineligible for selection. Defaults to DefaultPriority.
	Priority int
	// Sanity excludes the ensemble from the default active listing.
	Sanity bool
	// Username is the owner identity.
	Username string
	// Submitted is informational.
	Submitted time.Time
	// Compressed indicates package chunks are transported compressed.
	Compressed bool
	// UsernameTaggedPriority, when non-nil, overrides Priority entirely for
	// this ensemble's owner. This implements the "override" resolution of
	// the Open Question.
	UsernameTaggedPriority *int
	// Extra holds property keys not recognized by this version of the
	// struct. readProperties populates it from legacy data written by an
	// older or newer schema; the values are preserved verbatim on any
	// subsequent write but never interpreted.
	Extra map[string]string
}

// Normalize returns a copy of p with zero-value defaults applied.
func (p Properties) Normalize() Properties {
	if p.Priority == 0 {
		p.Priority = DefaultPriority
	}
	return p
}

// EffectivePriority returns the scheduling weight to use: the
// UsernameTaggedPriority override when set, else Priority.
func (p Properties) EffectivePriority() int {
	if p.UsernameTaggedPriority != nil {
		return *p.UsernameTaggedPriority
	}
	return p.Priority
}

// Counters are the mutable, atomically-updated aggregate results of an
// ensemble. All fields are non-negative.
type Counters struct {
	Started   uint64
	Ended     uint64
	Pass      uint64
	Fail      uint64
	Runtime   time.Duration
	Pass5Min  uint64
	Fail5Min  uint64
}

// CheckInvariant reports ErrInvariantViolation if Ended != Pass + Fail.
func (c Counters) CheckInvariant() error {
	if c.Ended != c.Pass+c.Fail {
		return ErrInvariantViolation
	}
	return nil
}

// Terminal reports whether c has met one of props's terminal conditions,
// transitioning the ensemble to Retiring.
func Terminal(props Properties, c Counters) bool {
	if props.MaxRuns > 0 && c.Ended >= uint64(props.MaxRuns) {
		return true
	}
	if props.FailFast > 0 && c.Fail >= uint64(props.FailFast) {
		return true
	}
	return false
}

// RunResult describes one completed execution.
type RunResult struct {
	RunToken  [16]byte
	Elapsed   time.Duration
	ExitClass ExitClass
	Output    []byte
}
