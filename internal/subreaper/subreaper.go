// Package subreaper declares the calling process a Linux child-subreaper
//, so that any grandchild orphaned by a test script
// is re-parented to the agent process instead of to PID 1, letting the
// sandbox reap it instead of leaking it into the container's init.
//
// On platforms without this capability, Enable is a no-op: the rest of the
// sandbox contract still holds, just without the orphan-recovery guarantee.
package subreaper

// Enable declares the current process a subreaper of its descendants. It is
// idempotent and safe to call more than once; agents call it exactly once,
// at startup, before spawning any sandboxed run.
func Enable() error {
	return enable()
}

// Enabled reports whether the current process is currently a subreaper.
// Used by tests and diagnostics; not required for normal sandbox operation.
func Enabled() (bool, error) {
	return enabled()
}
