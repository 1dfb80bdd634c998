package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshua-project/joshua"
	"github.com/joshua-project/joshua/internal/scheduler"
)

// flags holds the parsed command-line configuration (the "Agent
// command line").
type flags struct {
	clusterFile string
	kvBackend   string
	workDir     string
	idleSeconds int
	sanity      bool
	keepFailed  bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "joshua-agent",
		Short: "Run one Joshua test-execution agent",
		Long: `joshua-agent runs a single stateless agent: it repeatedly selects one
active ensemble, executes its test package in a sandboxed subprocess, and
reports the result back into the KV store, until the active index has been
empty for --agent-idle-timeout seconds or it receives SIGINT/SIGTERM.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.clusterFile, "cluster-file", "", "KV cluster descriptor path (required)")
	cmd.Flags().StringVar(&f.kvBackend, "kv-backend", "sqlite", `KV backend cluster-file is parsed for: "sqlite" or "etcd"`)
	cmd.Flags().StringVar(&f.workDir, "work-dir", "", "private work directory for sandboxed runs (required)")
	cmd.Flags().IntVar(&f.idleSeconds, "agent-idle-timeout", 300, "seconds the active index may stay empty before exiting 0")
	cmd.Flags().BoolVar(&f.sanity, "sanity", false, "restrict this agent to the sanity index")
	cmd.Flags().BoolVar(&f.keepFailed, "keep-failed", false, "retain (as a .failed directory) the work directory of a failing run")
	_ = cmd.MarkFlagRequired("cluster-file")
	_ = cmd.MarkFlagRequired("work-dir")

	return cmd
}

func runAgent(ctx context.Context, f flags) error {
	if f.idleSeconds <= 0 {
		return fmt.Errorf("--agent-idle-timeout must be positive, got %d", f.idleSeconds)
	}
	backend := joshua.Backend(f.kvBackend)
	if !backend.IsValid() {
		return fmt.Errorf("--kv-backend must be %q or %q, got %q", joshua.BackendSQLite, joshua.BackendEtcd, f.kvBackend)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := joshua.Open(f.clusterFile, backend)
	if err != nil {
		return fmt.Errorf("joshua-agent: %w", err)
	}
	defer client.Close()

	agent := scheduler.New(scheduler.Config{
		Store:       client.Store(),
		WorkRoot:    f.workDir,
		ClusterFile: f.clusterFile,
		Sanity:      f.sanity,
		IdleTimeout: time.Duration(f.idleSeconds) * time.Second,
		KeepFailed:  f.keepFailed,
		Logger:      slog.Default().With("component", "joshua-agent"),
	})

	return agent.Run(ctx)
}
