// Package sandbox implements the Subprocess Sandbox: given a
// test package blob and a timeout, it materializes the package, spawns
// joshua_test in a fresh working directory, captures its merged
// stdout/stderr up to a cap, enforces the timeout with a SIGTERM-then-
// SIGKILL escalation across the whole process group, and classifies the
// outcome.
//
// Run never returns an error for a test-visible failure — a non-zero exit,
// a timeout, or a signal all become a Fail Result. It returns an error only
// for environmental failures it cannot recover from: it
// could not create the working directory, could not materialize the
// package, or could not spawn the process at all.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joshua-project/joshua/internal/ensemble"
	"github.com/joshua-project/joshua/internal/sentinel"
)

// ErrCancelled is returned when ctx is canceled mid-run. The caller must not
// submit a result for this run ("exits the loop without writing
// a partial result").
const ErrCancelled = sentinel.Error("sandbox: run canceled")

// termGracePeriod is how long the process group is given to exit after
// SIGTERM before SIGKILL is sent.
const termGracePeriod = 5 * time.Second

// killDrainTimeout bounds how long Run waits for cmd.Wait to return after
// SIGKILL. SIGKILL cannot be caught, so this should never fire; it exists
// purely as a safety net against a stuck kernel/IO condition.
const killDrainTimeout = 10 * time.Second

// Config configures one sandbox run.
type Config struct {
	// WorkRoot is the agent's work directory; a fresh subdirectory is
	// created under it for this run.
	WorkRoot string
	// RunID names the fresh working subdirectory, so logs and any
	// retained .failed directory correlate with the run's result
	// (the scheduler passes the run token's UUID string).
	RunID string
	// Timeout is the per-run wall-clock limit.
	Timeout time.Duration
	// OutputCap bounds captured output; 0 uses ensemble.DefaultOutputCap.
	OutputCap int
	// ClusterFile is passed to the test process via JOSHUA_CLUSTER_FILE.
	ClusterFile string
	// Env carries user-provided environment overrides, layered onto a
	// minimal base environment before the test process starts.
	Env map[string]string
	// KeepFailed retains the working directory (renamed with a .failed
	// suffix) when the run's result is Fail.
	KeepFailed bool
}

// Result is the outcome of one sandboxed run.
type Result struct {
	ExitClass ensemble.ExitClass
	Elapsed   time.Duration
	Output    []byte
}

// Run materializes pkg, spawns joshua_test, and waits for it to finish or
// be killed. The working directory is removed afterward unless the result
// is Fail and cfg.KeepFailed is set, in which case it is renamed with a
// ".failed" suffix and left on disk.
func Run(ctx context.Context, cfg Config, pkg []byte) (Result, error) {
	if cfg.Timeout <= 0 {
		return Result{}, fmt.Errorf("sandbox: timeout must be positive")
	}
	outputCap := cfg.OutputCap
	if outputCap <= 0 {
		outputCap = ensemble.DefaultOutputCap
	}

	workDir := filepath.Join(cfg.WorkRoot, cfg.RunID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("sandbox: create working directory: %w", err)
	}

	if err := materializePackage(workDir, pkg); err != nil {
		_ = os.RemoveAll(workDir)
		return Result{}, fmt.Errorf("sandbox: materialize package: %w", err)
	}

	result, err := run(ctx, cfg, workDir, outputCap)
	if err != nil {
		_ = os.RemoveAll(workDir)
		return Result{}, err
	}

	cleanup(workDir, result, cfg.KeepFailed)
	return result, nil
}

func run(ctx context.Context, cfg Config, workDir string, outputCap int) (Result, error) {
	cmd := newCommand(workDir, cfg)
	capped := newCappedBuffer(outputCap)
	cmd.Stdout = capped
	cmd.Stderr = capped

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("sandbox: spawn %s: %w", testBinaryName, err)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	waitErr, timedOut, canceled := waitWithDeadline(ctx, cmd.Process.Pid, waitDone, cfg.Timeout)
	elapsed := time.Since(start)

	if canceled {
		return Result{}, ErrCancelled
	}

	exitClass := ensemble.Fail
	if waitErr == nil && !timedOut {
		exitClass = ensemble.Pass
	}

	return Result{
		ExitClass: exitClass,
		Elapsed:   elapsed,
		Output:    capped.Bytes(),
	}, nil
}

// waitWithDeadline blocks until the process exits, the timeout fires (in
// which case it escalates SIGTERM then SIGKILL to the process group), or
// ctx is canceled (in which case it sends SIGTERM and reports canceled).
func waitWithDeadline(ctx context.Context, pid int, waitDone <-chan error, timeout time.Duration) (waitErr error, timedOut bool, canceled bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr = <-waitDone:
		return waitErr, false, false
	case <-timer.C:
		escalate(pid, waitDone)
		waitErr = drain(waitDone)
		return waitErr, true, false
	case <-ctx.Done():
		_ = signalGroup(pid, syscall.SIGTERM)
		drainBestEffort(waitDone)
		return nil, false, true
	}
}

func escalate(pid int, waitDone <-chan error) {
	_ = signalGroup(pid, syscall.SIGTERM)
	graceTimer := time.NewTimer(termGracePeriod)
	defer graceTimer.Stop()
	select {
	case <-waitDone:
		return
	case <-graceTimer.C:
		_ = signalGroup(pid, syscall.SIGKILL)
	}
}

func drain(waitDone <-chan error) error {
	select {
	case err := <-waitDone:
		return err
	case <-time.After(killDrainTimeout):
		return fmt.Errorf("sandbox: timed out waiting for process group to exit after SIGKILL")
	}
}

func drainBestEffort(waitDone <-chan error) {
	select {
	case <-waitDone:
	case <-time.After(killDrainTimeout):
	}
}

func cleanup(workDir string, result Result, keepFailed bool) {
	if result.ExitClass == ensemble.Fail && keepFailed {
		_ = os.Rename(workDir, workDir+".failed")
		return
	}
	_ = os.RemoveAll(workDir)
}
