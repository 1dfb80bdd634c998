package kv

import "strings"

// Key layout. Segments are joined with "/", mirroring the directory-style
// encoding a FoundationDB-style directory layer uses; byte-wise string
// ordering of the resulting keys recovers the same ordering a real
// directory-tuple layer would give.
const (
	PropertiesPrefix = "ensembles/properties/"
	CountersPrefix   = "ensembles/counters/"
	PackagePrefix    = "ensembles/package/"
	ResultsPrefix    = "ensembles/results/"
	ActivePrefix     = "active/"
	ActiveSanityPrefix = "active_sanity/"
)

// PrefixEnd returns the exclusive end of the range covering every key with
// the given prefix: the smallest string that sorts after every string
// beginning with prefix. Used to turn a prefix into a [begin, end) range.
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	// prefix is all 0xff bytes (never happens for our hex/ASCII keys); no
	// finite end exists, so the caller must treat this as unbounded.
	return string(append(b, 0xff))
}

// PropertyKey returns the key for a single property of an ensemble.
func PropertyKey(id Versionstamp, name string) string {
	return PropertiesPrefix + id.String() + "/" + name
}

// PropertiesRange returns the [begin, end) range covering all properties of id.
func PropertiesRange(id Versionstamp) (begin, end string) {
	p := PropertiesPrefix + id.String() + "/"
	return p, PrefixEnd(p)
}

// CounterKey returns the key for a single named counter of an ensemble.
func CounterKey(id Versionstamp, name string) string {
	return CountersPrefix + id.String() + "/" + name
}

// CountersRange returns the [begin, end) range covering all counters of id.
func CountersRange(id Versionstamp) (begin, end string) {
	p := CountersPrefix + id.String() + "/"
	return p, PrefixEnd(p)
}

// PackageChunkKey returns the key for one chunk of an ensemble's package blob.
func PackageChunkKey(id Versionstamp, chunkIndex int) string {
	return PackagePrefix + id.String() + "/" + zeroPad(chunkIndex)
}

// PackageRange returns the [begin, end) range covering all package chunks of id.
func PackageRange(id Versionstamp) (begin, end string) {
	p := PackagePrefix + id.String() + "/"
	return p, PrefixEnd(p)
}

// ResultKey returns the key for one output chunk of one run result.
func ResultKey(id Versionstamp, runToken [16]byte, seq int) string {
	return ResultsPrefix + id.String() + "/" + hexBytes(runToken[:]) + "/" + zeroPad(seq)
}

// ResultRunPrefix returns the key prefix for every chunk of a single run.
func ResultRunPrefix(id Versionstamp, runToken [16]byte) string {
	return ResultsPrefix + id.String() + "/" + hexBytes(runToken[:]) + "/"
}

// ResultsRange returns the [begin, end) range covering every run result of id.
func ResultsRange(id Versionstamp) (begin, end string) {
	p := ResultsPrefix + id.String() + "/"
	return p, PrefixEnd(p)
}

// ActiveKey returns the active-index key for id. Presence of this key means
// id is eligible for scheduling.
func ActiveKey(id Versionstamp) string {
	return ActivePrefix + id.String()
}

// ActiveSanityKey returns the sanity-index key for id.
func ActiveSanityKey(id Versionstamp) string {
	return ActiveSanityPrefix + id.String()
}

// IDFromIndexKey strips an active/active-sanity prefix, returning the
// embedded ensemble id.
func IDFromIndexKey(prefix, key string) (Versionstamp, error) {
	return ParseVersionstamp(strings.TrimPrefix(key, prefix))
}

// IDFromPropertyKey extracts the ensemble id embedded in a
// ensembles/properties/* key.
func IDFromPropertyKey(key string) (Versionstamp, error) {
	rest := strings.TrimPrefix(key, PropertiesPrefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 0 {
		return Versionstamp{}, ErrNotFound
	}
	return ParseVersionstamp(parts[0])
}

// IDFromResultKey extracts the ensemble id embedded in a results/* key.
func IDFromResultKey(key string) (Versionstamp, error) {
	rest := strings.TrimPrefix(key, ResultsPrefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 0 {
		return Versionstamp{}, ErrNotFound
	}
	return ParseVersionstamp(parts[0])
}

// zeroPad renders n as an 8-hex-digit string so lexicographic and numeric
// order coincide for chunk/seq indices up to 2^32-1.
func zeroPad(n int) string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hexdigits[n&0xf]
		n >>= 4
	}
	return string(buf)
}

func hexBytes(b []byte) string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, len(b)*2)
	for i, c := range b {
		buf[i*2] = hexdigits[c>>4]
		buf[i*2+1] = hexdigits[c&0xf]
	}
	return string(buf)
}
