//go:build !windows

package procutil

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Isolate puts cmd in a new process group and makes context cancellation
// kill the whole group. Call it before Start.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.Cancel = func() error { return Kill(cmd) }
}

// Kill sends SIGKILL to the process group of a started cmd, falling back to
// the process itself when the group is gone.
func Kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
