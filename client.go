package joshua

import (
	"context"
	"fmt"

	"github.com/joshua-project/joshua/internal/ensemble"
	"github.com/joshua-project/joshua/internal/kv"
	"github.com/joshua-project/joshua/internal/kv/etcdkv"
	"github.com/joshua-project/joshua/internal/kv/sqlitekv"
)

// Re-exported types: the facade's vocabulary is internal/ensemble's and
// internal/kv's, renamed at this boundary only where a caller-facing name
// reads better than the internal one.
type (
	Properties = ensemble.Properties
	Counters   = ensemble.Counters
	ExitClass  = ensemble.ExitClass
	RunResult  = ensemble.RunResult
	Summary    = ensemble.Summary
	ListFilter = ensemble.ListFilter
	ListSort   = ensemble.ListSort
	Page       = ensemble.Page
	TailMode   = ensemble.TailMode
	Versionstamp = kv.Versionstamp
)

// Re-exported constants.
const (
	Pass = ensemble.Pass
	Fail = ensemble.Fail

	TailAll        = ensemble.TailAll
	TailErrorsOnly = ensemble.TailErrorsOnly
	TailRaw        = ensemble.TailRaw

	SortByID       = ensemble.SortByID
	SortByUsername = ensemble.SortByUsername
)

// Client is a connected handle to one Joshua KV backend. A Client is
// obtained once via Open (or OpenStore) and closed once via Close; it holds
// no per-call state beyond the Store it wraps (the client is
// an explicit handle, not an ambient global).
type Client struct {
	store kv.Store
}

// Open connects to the KV backend named by backend, parsing clusterFile
// according to that backend's own format (see Backend's documentation).
// opts configures backend-specific details that have no place in
// clusterFile itself, such as WithDialTimeout for the etcd backend.
func Open(clusterFile string, backend Backend, opts ...OpenOption) (*Client, error) {
	if !backend.IsValid() {
		return nil, fmt.Errorf("joshua: unknown backend %q", backend)
	}

	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var store kv.Store
	var err error
	switch backend {
	case BackendSQLite:
		store, err = sqlitekv.Open(clusterFile)
		if err != nil {
			return nil, fmt.Errorf("joshua: open sqlite backend: %w", err)
		}
	case BackendEtcd:
		endpoints, endpointsErr := readEtcdEndpoints(clusterFile)
		if endpointsErr != nil {
			return nil, fmt.Errorf("joshua: %w", endpointsErr)
		}
		store, err = etcdkv.Open(etcdkv.Config{
			Endpoints:   endpoints,
			DialTimeout: cfg.dialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("joshua: open etcd backend: %w", err)
		}
	}

	packageLogger().Info("connected to KV backend", "backend", backend.String())
	return &Client{store: store}, nil
}

// OpenStore wraps an already-open Store, bypassing cluster-file parsing.
// Tests and embedders that construct a Store directly (for example an
// in-memory sqlitekv.Store) use this instead of Open.
func OpenStore(store kv.Store) *Client {
	return &Client{store: store}
}

// Close releases the underlying Store's resources.
func (c *Client) Close() error {
	return c.store.Close()
}

// Store returns the underlying kv.Store, for callers (such as
// cmd/joshua-agent) that construct lower-level components such as
// internal/scheduler.Agent directly against the same backend.
func (c *Client) Store() kv.Store {
	return c.store
}

// Create submits a new ensemble: it chunks and stores packageBytes, installs
// props, and adds the ensemble to the active (or sanity) index, all as one
// logically atomic operation.
func (c *Client) Create(ctx context.Context, props Properties, packageBytes []byte) (Versionstamp, error) {
	return ensemble.Create(ctx, c.store, props, packageBytes)
}

// List returns one page of ensembles matching filter.
func (c *Client) List(ctx context.Context, filter ListFilter) (Page, error) {
	return ensemble.List(ctx, c.store, filter)
}

// Stop removes id from scheduling without deleting its data.
func (c *Client) Stop(ctx context.Context, id Versionstamp) error {
	return ensemble.Stop(ctx, c.store, id)
}

// StopByUsername stops every active (or sanity) ensemble owned by username,
// returning the count stopped.
func (c *Client) StopByUsername(ctx context.Context, username string, sanity bool) (int, error) {
	return ensemble.StopByUsername(ctx, c.store, username, sanity)
}

// Delete permanently removes id and all its data.
func (c *Client) Delete(ctx context.Context, id Versionstamp) error {
	return ensemble.Delete(ctx, c.store, id)
}

// Tail reassembles id's run results.
func (c *Client) Tail(ctx context.Context, id Versionstamp, mode TailMode) ([]RunResult, error) {
	return ensemble.Tail(ctx, c.store, id, mode)
}

// ReadPackage reassembles id's submitted package bytes.
func (c *Client) ReadPackage(ctx context.Context, id Versionstamp) ([]byte, error) {
	return ensemble.ReadPackage(ctx, c.store, id)
}

// PackageChecksum returns the SHA-256 recorded for id's package at create
// time.
func (c *Client) PackageChecksum(ctx context.Context, id Versionstamp) (string, error) {
	return ensemble.PackageChecksum(ctx, c.store, id)
}

// VerifyPackageChecksum reassembles id's package and compares it against
// the checksum recorded at create time.
func (c *Client) VerifyPackageChecksum(ctx context.Context, id Versionstamp) (bool, error) {
	return ensemble.VerifyPackageChecksum(ctx, c.store, id)
}

// ActiveCount returns the number of ensembles currently eligible for
// scheduling (the autoscaler's sole KV read).
func (c *Client) ActiveCount(ctx context.Context, sanity bool) (int, error) {
	return ensemble.ActiveCount(ctx, c.store, sanity)
}
