package joshua

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Backend selects which internal/kv implementation a cluster file is parsed
// for. The transport is an explicit, separate selection (mirroring
// --kv-backend on cmd/joshua-agent) rather than inferred from the file's
// contents, since the two backends' descriptors share no common shape to
// sniff.
type Backend string

const (
	// BackendSQLite selects internal/kv/sqlitekv. The cluster file is the
	// SQLite database path itself (or ":memory:").
	BackendSQLite Backend = "sqlite"

	// BackendEtcd selects internal/kv/etcdkv. The cluster file lists one
	// endpoint per line (blank lines and "#"-prefixed comments ignored).
	BackendEtcd Backend = "etcd"
)

// IsValid reports whether b is a recognized backend.
func (b Backend) IsValid() bool {
	return b == BackendSQLite || b == BackendEtcd
}

// String implements fmt.Stringer.
func (b Backend) String() string {
	return string(b)
}

// readEtcdEndpoints parses an etcd cluster file: one endpoint per line,
// blank lines and "#" comments ignored.
func readEtcdEndpoints(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster file %s: %w", path, err)
	}
	defer f.Close()

	var endpoints []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		endpoints = append(endpoints, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cluster file %s: %w", path, err)
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("cluster file %s: no endpoints found", path)
	}
	return endpoints, nil
}
