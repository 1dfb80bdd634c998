package kv

import (
	"encoding/hex"
	"sync"
)

// Versionstamp is a 10-byte, monotonically increasing token assigned by a
// backend at commit time. It is the canonical ensemble id:
// sorting versionstamps byte-wise recovers commit order, which in turn
// recovers submission order (the "submission order equals natural
// key order" property).
type Versionstamp [10]byte

// String renders the versionstamp as lowercase hex, suitable for use as a
// key-path segment: hex preserves byte-wise ordering, so the resulting
// strings still sort in commit order.
func (v Versionstamp) String() string {
	return hex.EncodeToString(v[:])
}

// ParseVersionstamp decodes the hex form produced by String.
func ParseVersionstamp(s string) (Versionstamp, error) {
	var v Versionstamp
	b, err := hex.DecodeString(s)
	if err != nil {
		return v, err
	}
	if len(b) != len(v) {
		return v, ErrNotFound
	}
	copy(v[:], b)
	return v, nil
}

// Less reports whether v sorts before o in commit order.
func (v Versionstamp) Less(o Versionstamp) bool {
	for i := range v {
		if v[i] != o[i] {
			return v[i] < o[i]
		}
	}
	return false
}

// IsZero reports whether v is the zero versionstamp (never a valid id).
func (v Versionstamp) IsZero() bool {
	return v == Versionstamp{}
}

// VersionstampFuture is a forward reference to the versionstamp a
// transaction will be assigned once it commits successfully. See
// Tx.NewVersionstamp.
type VersionstampFuture struct {
	mu       sync.Mutex
	resolved bool
	value    Versionstamp
}

// ResolveVersionstampFuture assigns f's value. Backend implementations call
// this exactly once per future, after their commit succeeds; it is not part
// of the contract Store consumers use.
func ResolveVersionstampFuture(f *VersionstampFuture, v Versionstamp) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = true
	f.value = v
}

// Get returns the resolved versionstamp. ok is false if the transaction has
// not yet committed (or failed to commit), in which case value is the zero
// Versionstamp.
func (f *VersionstampFuture) Get() (value Versionstamp, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.resolved
}
