//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
	"syscall"
)

// configureProcessGroup is a no-op on non-POSIX platforms; only the direct
// child receives signals there.
func configureProcessGroup(cmd *exec.Cmd) {}

func signalGroup(pid int, sig syscall.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if sig == syscall.SIGKILL {
		return p.Kill()
	}
	return p.Signal(sig)
}
