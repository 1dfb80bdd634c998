// Package kv defines the transactional ordered key-value contract that the
// rest of Joshua is built against, and the small set of primitives
// (versionstamps, range iteration, atomic add) that a backend must provide.
//
// Apart from the root package's Open, which picks a backend (sqlitekv or
// etcdkv), no non-test code outside this package and its backend
// subpackages depends on a specific transport. This mirrors the "ambient
// globals for the KV handle" redesign: callers receive an explicit Store
// value at startup and thread it through every operation, rather than
// reaching for a process-wide handle.
package kv
