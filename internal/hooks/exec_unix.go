//go:build unix

package hooks

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// isExecutable reports whether path is a regular file the current process
// may execute, taking ownership and ACLs into account.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}

// setProcessGroup puts the script in its own group so cancellation kills
// everything it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
