package joshua

import (
	"log/slog"
	"sync/atomic"
)

// logger is the package-level logger used by joshua, stored as an atomic
// pointer to allow safe concurrent reads and writes.
//
// A nil value means no custom logger has been set; packageLogger() falls
// back to a cached default derived from slog.Default().
var logger atomic.Pointer[slog.Logger]

// defaultLogger caches the default-derived logger (slog.Default() with the
// joshua component attribute) so it is not re-created on every call.
var defaultLogger atomic.Pointer[slog.Logger]

// packageLogger returns the current package-level logger, creating and
// caching the default if none has been set.
func packageLogger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := slog.Default().With("component", "joshua")
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return l
}

// SetLogger replaces the package-level logger used by Client operations
// (the connection message Open logs; Client methods otherwise report
// failures through their returned error). The provided logger should
// already carry any desired attributes.
//
// If l is nil, the logger resets to the default: slog.Default() with a
// "component" attribute, re-derived on the next use. Call SetLogger(nil)
// after slog.SetDefault() to pick up the change.
//
// SetLogger is safe to call concurrently with other joshua operations.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	defaultLogger.Store(nil)
}
