// Package joshua provides a client for the Joshua distributed test-execution
// fabric: an ordered, transactional key-value store coordinating a fleet of
// stateless agent processes that run large correctness-test ensembles.
//
// Joshua itself holds no ambient state beyond the KV store: every operation
// below is a transaction or snapshot read against whichever backend Open
// connects to (a local SQLite file for development, or an etcd cluster for
// a production fleet).
//
// # Basic Usage
//
//	import "github.com/joshua-project/joshua"
//
//	ctx := context.Background()
//
//	client, err := joshua.Open("/var/lib/joshua/joshua.db", joshua.BackendSQLite)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	id, err := client.Create(ctx, joshua.Properties{
//	    MaxRuns:  1000,
//	    Timeout:  5 * time.Minute,
//	    Username: "alice",
//	}, testPackage)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := client.Tail(ctx, id, joshua.TailErrorsOnly)
//
// Open accepts OpenOption values for settings that don't fit clusterFile's
// own format, such as WithDialTimeout for the etcd backend:
//
//	client, err := joshua.Open(clusterFile, joshua.BackendEtcd,
//	    joshua.WithDialTimeout(10*time.Second))
//
// # Agents
//
// Agents are built on top of internal/scheduler, not this package; see
// cmd/joshua-agent. This package is the operator- and tool-facing surface:
// submitting ensembles, listing and stopping them, and reading back results.
package joshua
