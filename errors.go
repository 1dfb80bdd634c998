package joshua

import "github.com/joshua-project/joshua/internal/ensemble"

// Sentinel errors for error inspection with errors.Is.
//
// These re-export internal/ensemble's sentinels rather than wrapping them,
// so errors.Is works whether the caller compares against joshua.ErrNotFound
// or (reaching past this facade) ensemble.ErrNotFound directly.
const (
	// ErrNotFound is returned when an ensemble id does not exist.
	ErrNotFound = ensemble.ErrNotFound

	// ErrConflict is returned when the KV backend signalled a retryable
	// commit conflict after internal retries were exhausted.
	ErrConflict = ensemble.ErrConflict

	// ErrTooLarge is returned when a single property or write exceeds the
	// backend's transaction size budget.
	ErrTooLarge = ensemble.ErrTooLarge

	// ErrInvariantViolation is returned when an ensemble's counters are
	// observed inconsistent with ended == pass + fail. Treat this as
	// fatal: it indicates corrupted state, not a retryable condition.
	ErrInvariantViolation = ensemble.ErrInvariantViolation
)
