// Package scheduler implements the Agent Scheduler: the
// central loop of a stateless agent process, pulling one run at a time from
// the active index, sandboxing it, and reporting the result back into the
// transactional KV store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/joshua-project/joshua/internal/ensemble"
	"github.com/joshua-project/joshua/internal/kv"
	"github.com/joshua-project/joshua/internal/sandbox"
	"github.com/joshua-project/joshua/internal/subreaper"
)

// pollInterval bounds one Discovering watch-or-poll cycle.
const pollInterval = 5 * time.Second

// discoverTick is the interval wait.PollUntilContextTimeout waits between
// condition calls. It is kept far shorter than pollInterval because the
// condition function itself blocks for up to pollInterval inside its watch
// call; discoverTick only matters immediately after a watch wakes up early.
const discoverTick = 10 * time.Millisecond

// Config configures one Agent.
type Config struct {
	// Store is the KV backend. Required.
	Store kv.Store
	// WorkRoot is the agent's private work directory; a fresh subdirectory
	// is created under it for every run (internal/sandbox.Config.WorkRoot).
	WorkRoot string
	// ClusterFile is the KV cluster descriptor path, exposed to test
	// processes via JOSHUA_CLUSTER_FILE.
	ClusterFile string
	// Env carries user-provided environment overrides passed to every run.
	Env map[string]string
	// Sanity restricts this agent to the sanity index.
	Sanity bool
	// IdleTimeout is how long the active index may stay continuously empty
	// before Run returns cleanly.
	IdleTimeout time.Duration
	// KeepFailed retains a run's working directory (renamed .failed) when
	// its result is Fail.
	KeepFailed bool
	// Logger receives state-transition and lifecycle events. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Agent runs the state machine. A single agent runs exactly one
// test at a time; it holds no lease, no lock, and no identity persisted
// across runs ("agents hold no lease, no lock").
type Agent struct {
	cfg   Config
	log   *slog.Logger
	state atomic.Uint32 // State; zero value is Idle
}

// New constructs an Agent from cfg. Panics on missing required
// configuration.
func New(cfg Config) *Agent {
	if cfg.Store == nil {
		panic("joshua/scheduler: Store must not be nil")
	}
	if cfg.WorkRoot == "" {
		panic("joshua/scheduler: WorkRoot must not be empty")
	}
	if cfg.IdleTimeout <= 0 {
		panic("joshua/scheduler: IdleTimeout must be positive")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Agent{cfg: cfg, log: log}
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

func (a *Agent) setState(s State) {
	a.state.Store(uint32(s))
	a.log.Debug("agent state transition", "state", s.String())
}

// Run drives the agent loop until one of: the active index has been
// continuously empty for Config.IdleTimeout, ctx is canceled, or an
// environmental error occurs. A nil return covers both the clean
// idle-timeout exit and ordinary cancellation, neither of which is an
// error worth surfacing. A non-nil return is fatal: the caller should exit
// non-zero so the orchestrator restarts the agent clean.
func (a *Agent) Run(ctx context.Context) error {
	if err := subreaper.Enable(); err != nil {
		// Absence of this capability is expected on non-Linux platforms and
		// in some container runtimes; the sandbox still enforces timeouts
		// via process-group signals without it.
		a.log.Warn("child-subreaper capability unavailable, orphaned grandchildren will re-parent to PID 1", "error", err)
	}

	for {
		a.setState(Discovering)
		candidates, err := a.discover(ctx)
		if err != nil {
			return fmt.Errorf("scheduler: discover: %w", err)
		}
		if candidates == nil {
			return nil
		}

		a.setState(Selecting)
		chosen := selectCandidate(candidates)
		a.log.Debug("selected candidate", "id", chosen.ID.String(), "priority", chosen.Priority)

		a.setState(Preparing)
		props, pkg, ok, err := a.prepare(ctx, chosen.ID)
		if err != nil {
			return fmt.Errorf("scheduler: prepare %s: %w", chosen.ID, err)
		}
		if !ok {
			a.log.Debug("abandoned pick, no longer active", "id", chosen.ID.String())
			continue
		}

		a.setState(Running)
		result, runToken, err := a.runSandbox(ctx, props, pkg)
		if err != nil {
			if errors.Is(err, sandbox.ErrCancelled) {
				return nil
			}
			return fmt.Errorf("scheduler: run %s: %w", chosen.ID, err)
		}

		a.setState(Reporting)
		retired, err := ensemble.SubmitResult(ctx, a.cfg.Store, chosen.ID, ensemble.RunResult{
			RunToken:  runToken,
			Elapsed:   result.Elapsed,
			ExitClass: result.ExitClass,
			Output:    result.Output,
		})
		if err != nil {
			return fmt.Errorf("scheduler: submit result for %s: %w", chosen.ID, err)
		}
		if retired {
			a.setState(Retiring)
			a.log.Info("ensemble retired", "id", chosen.ID.String())
		}
	}
}

// discover implements the Discovering state: it polls the active index,
// and between polls waits on either a KV watch notification or pollInterval
// elapsing, whichever comes first. It returns (nil, nil) once the index has
// stayed empty for the full IdleTimeout, or once ctx is canceled — both are
// the caller's signal to exit cleanly.
func (a *Agent) discover(ctx context.Context) ([]ensemble.Candidate, error) {
	prefix := kv.ActivePrefix
	if a.cfg.Sanity {
		prefix = kv.ActiveSanityPrefix
	}
	end := kv.PrefixEnd(prefix)

	var candidates []ensemble.Candidate
	err := wait.PollUntilContextTimeout(ctx, discoverTick, a.cfg.IdleTimeout, true,
		func(pollCtx context.Context) (bool, error) {
			cs, err := ensemble.ListActive(pollCtx, a.cfg.Store, a.cfg.Sanity)
			if err != nil {
				return false, err
			}
			if len(cs) > 0 {
				candidates = cs
				return true, nil
			}

			watchCtx, cancel := context.WithTimeout(pollCtx, pollInterval)
			defer cancel()
			_ = a.cfg.Store.Watch(watchCtx, prefix, end)
			return false, nil
		})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, err
	}
	return candidates, nil
}

// prepare implements the Preparing state. ok is false when the id left the
// active index before prepare completed; the caller abandons the pick
// without having wasted a write.
func (a *Agent) prepare(ctx context.Context, id kv.Versionstamp) (ensemble.Properties, []byte, bool, error) {
	props, pkg, err := ensemble.Prepare(ctx, a.cfg.Store, id, a.cfg.Sanity)
	if errors.Is(err, ensemble.ErrNotFound) {
		return ensemble.Properties{}, nil, false, nil
	}
	if err != nil {
		return ensemble.Properties{}, nil, false, err
	}
	return props, pkg, true, nil
}

// runSandbox implements the Running state: it mints the run's token
// up front ("a 16-byte random value generated by the agent"),
// via uuid.NewV7 so results/<id>/<run_token>/<seq> sorts by completion
// time under plain key order (see DESIGN.md's run_token decision), then
// invokes the sandbox with the ensemble's timeout.
func (a *Agent) runSandbox(ctx context.Context, props ensemble.Properties, pkg []byte) (sandbox.Result, [16]byte, error) {
	token, err := uuid.NewV7()
	if err != nil {
		return sandbox.Result{}, [16]byte{}, fmt.Errorf("generate run token: %w", err)
	}
	runToken := [16]byte(token)

	result, err := sandbox.Run(ctx, sandbox.Config{
		WorkRoot:    a.cfg.WorkRoot,
		RunID:       token.String(),
		Timeout:     props.Timeout,
		ClusterFile: a.cfg.ClusterFile,
		Env:         a.cfg.Env,
		KeepFailed:  a.cfg.KeepFailed,
	}, pkg)
	if err != nil {
		return sandbox.Result{}, runToken, err
	}
	return result, runToken, nil
}
