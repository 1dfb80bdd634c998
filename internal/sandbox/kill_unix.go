//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts cmd in its own process group so that a signal
// sent to -pid reaches the test process and every descendant it spawned,
// not just the immediate child.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the process group rooted at pid.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
