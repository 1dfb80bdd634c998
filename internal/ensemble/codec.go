package ensemble

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/joshua-project/joshua/internal/kv"
)

// Recognized property key names.
const (
	keyMaxRuns                = "max_runs"
	keyFailFast                = "fail_fast"
	keyTimeout                 = "timeout"
	keyPriority                = "priority"
	keySanity                  = "sanity"
	keyUsername                = "username"
	keySubmitted               = "submitted"
	keyCompressed              = "compressed"
	keyUsernameTaggedPriority  = "username_tagged_priority"
	keyPackageSHA256           = "package_sha256"
	keyPackageChunks           = "package_chunks"
)

// recognizedKey reports whether name is one of the fields Properties
// decodes explicitly, so writeProperties doesn't let a stale Extra entry
// shadow a field it was itself derived from.
func recognizedKey(name string) bool {
	switch name {
	case keyMaxRuns, keyFailFast, keyTimeout, keyPriority, keySanity, keyUsername,
		keySubmitted, keyCompressed, keyUsernameTaggedPriority, keyPackageSHA256, keyPackageChunks:
		return true
	default:
		return false
	}
}

// writeProperties writes every recognized key of props under id's
// properties subspace, plus any unrecognized keys carried in props.Extra —
// round-tripping legacy data without ever interpreting it.
func writeProperties(tx kv.Tx, id kv.Versionstamp, props Properties) {
	set := func(name, value string) {
		tx.Set(kv.PropertyKey(id, name), []byte(value))
	}
	set(keyMaxRuns, strconv.Itoa(props.MaxRuns))
	set(keyFailFast, strconv.Itoa(props.FailFast))
	set(keyTimeout, strconv.FormatInt(int64(props.Timeout/time.Second), 10))
	set(keyPriority, strconv.Itoa(props.Priority))
	set(keySanity, boolString(props.Sanity))
	set(keyUsername, props.Username)
	set(keySubmitted, props.Submitted.UTC().Format(time.RFC3339))
	set(keyCompressed, boolString(props.Compressed))
	if props.UsernameTaggedPriority != nil {
		set(keyUsernameTaggedPriority, strconv.Itoa(*props.UsernameTaggedPriority))
	}
	for name, value := range props.Extra {
		if recognizedKey(name) {
			continue
		}
		set(name, value)
	}
}

// readProperties reads every recognized key of id's properties subspace.
// ok is false if no properties exist for id ("active index
// implies properties non-empty"; callers use this to detect NotFound).
func readProperties(ctx context.Context, tx kv.ReadTx, id kv.Versionstamp) (Properties, bool, error) {
	begin, end := kv.PropertiesRange(id)
	var props Properties
	found := false
	for row, err := range tx.Range(ctx, begin, end, kv.RangeOptions{}) {
		if err != nil {
			return Properties{}, false, fmt.Errorf("read properties for %s: %w", id, err)
		}
		found = true
		name := row.Key[len(begin):]
		value := string(row.Value)
		switch name {
		case keyMaxRuns:
			props.MaxRuns, _ = strconv.Atoi(value)
		case keyFailFast:
			props.FailFast, _ = strconv.Atoi(value)
		case keyTimeout:
			secs, _ := strconv.ParseInt(value, 10, 64)
			props.Timeout = time.Duration(secs) * time.Second
		case keyPriority:
			props.Priority, _ = strconv.Atoi(value)
		case keySanity:
			props.Sanity = value == "1"
		case keyUsername:
			props.Username = value
		case keySubmitted:
			props.Submitted, _ = time.Parse(time.RFC3339, value)
		case keyCompressed:
			props.Compressed = value == "1"
		case keyUsernameTaggedPriority:
			n, _ := strconv.Atoi(value)
			props.UsernameTaggedPriority = &n
		case keyPackageSHA256, keyPackageChunks:
			// read directly by ReadPackage/PackageChecksum, not surfaced on Properties
		default:
			if props.Extra == nil {
				props.Extra = make(map[string]string)
			}
			props.Extra[name] = value
		}
	}
	return props, found, nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// counterNames enumerates every recognized counter field, in the order
// Counters' fields are declared, so encode/decode stay obviously in sync.
var counterNames = []string{"started", "ended", "pass", "fail", "runtime", "pass_5min", "fail_5min"}

// readCounters reads every counter of id.
func readCounters(ctx context.Context, tx kv.ReadTx, id kv.Versionstamp) (Counters, error) {
	var c Counters
	for _, name := range counterNames {
		value, ok, err := tx.Get(ctx, kv.CounterKey(id, name))
		if err != nil {
			return Counters{}, fmt.Errorf("read counter %s for %s: %w", name, id, err)
		}
		var n uint64
		if ok {
			n = decodeCounter(value)
		}
		switch name {
		case "started":
			c.Started = n
		case "ended":
			c.Ended = n
		case "pass":
			c.Pass = n
		case "fail":
			c.Fail = n
		case "runtime":
			c.Runtime = time.Duration(n)
		case "pass_5min":
			c.Pass5Min = n
		case "fail_5min":
			c.Fail5Min = n
		}
	}
	return c, nil
}

func decodeCounter(b []byte) uint64 {
	var n uint64
	for i := 0; i < len(b) && i < 8; i++ {
		n |= uint64(b[i]) << (8 * i)
	}
	return n
}
