package joshua

import (
	"fmt"
	"time"
)

// requirePositive panics if v <= 0 with a descriptive message. Option
// values are typically compile-time constants, so an invalid one indicates
// a programmer error rather than a runtime condition worth an error return.
func requirePositive(name string, v time.Duration) {
	if v <= 0 {
		panic(fmt.Sprintf("joshua: %s must be greater than 0, got %v", name, v))
	}
}

// openConfig holds Open's optional settings.
type openConfig struct {
	dialTimeout time.Duration
}

// OpenOption configures Open. Each With* function returns an OpenOption
// that sets one field.
type OpenOption func(*openConfig)

// WithDialTimeout sets the etcd backend's connection timeout. Has no
// effect with BackendSQLite.
//
// Default: 5 seconds.
//
// Panics if d <= 0.
func WithDialTimeout(d time.Duration) OpenOption {
	requirePositive("dial timeout", d)
	return func(c *openConfig) {
		c.dialTimeout = d
	}
}
