//go:build unix

package tool

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the command in its own process group and
// makes cancellation kill the whole group, so helpers a tool forks do not
// outlive it.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
