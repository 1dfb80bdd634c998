package sandbox

import (
	"os"
	"os/exec"
	"path/filepath"
)

// newCommand builds the exec.Cmd for joshua_test: a minimal environment
// (HOME, PATH, the KV cluster file) plus user overrides, run from workDir,
// in its own process group.
func newCommand(workDir string, cfg Config) *exec.Cmd {
	cmd := exec.Command(filepath.Join(workDir, testBinaryName))
	cmd.Dir = workDir
	cmd.Env = buildEnv(workDir, cfg)
	configureProcessGroup(cmd)
	return cmd
}

func buildEnv(workDir string, cfg Config) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/bin:/bin"
	}

	env := map[string]string{
		"HOME":                workDir,
		"PATH":                path,
		"JOSHUA_CLUSTER_FILE": cfg.ClusterFile,
	}
	for k, v := range cfg.Env {
		env[k] = v
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
