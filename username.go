package joshua

import (
	"os"
	"os/user"
)

// ResolveUsername returns the identity a client should attach to
// Properties.Username when the caller hasn't set one explicitly: the
// JOSHUA_USER environment variable if set ("JOSHUA_USER
// overrides the OS username used by clients when submitting or
// filtering"), else the current OS user, else "" if neither is available.
func ResolveUsername() string {
	if u := os.Getenv("JOSHUA_USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
