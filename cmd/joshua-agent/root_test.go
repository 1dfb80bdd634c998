package main

import (
	"context"
	"testing"
)

func TestNewRootCmd_RequiresClusterFileAndWorkDir(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error when --cluster-file and --work-dir are omitted")
	}
}

func TestRunAgent_RejectsNonPositiveIdleTimeout(t *testing.T) {
	t.Parallel()

	err := runAgent(context.Background(), flags{
		clusterFile: ":memory:",
		kvBackend:   "sqlite",
		workDir:     t.TempDir(),
		idleSeconds: 0,
	})
	if err == nil {
		t.Fatal("expected error for --agent-idle-timeout=0")
	}
}

func TestRunAgent_RejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	err := runAgent(context.Background(), flags{
		clusterFile: ":memory:",
		kvBackend:   "postgres",
		workDir:     t.TempDir(),
		idleSeconds: 60,
	})
	if err == nil {
		t.Fatal("expected error for unknown --kv-backend")
	}
}

func TestRunAgent_IdlesCleanlyAgainstEmptyStore(t *testing.T) {
	t.Parallel()

	err := runAgent(context.Background(), flags{
		clusterFile: ":memory:",
		kvBackend:   "sqlite",
		workDir:     t.TempDir(),
		idleSeconds: 1,
	})
	if err != nil {
		t.Fatalf("runAgent: %v", err)
	}
}
