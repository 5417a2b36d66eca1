//go:build !unix

package hooks

import (
	"os"
	"os/exec"
)

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

func setProcessGroup(cmd *exec.Cmd) {}
