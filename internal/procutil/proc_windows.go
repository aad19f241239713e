//go:build windows

package procutil

import "os/exec"

// Isolate makes context cancellation kill cmd. Windows has no process groups
// to signal, so forked children are not reached.
func Isolate(cmd *exec.Cmd) {
	cmd.Cancel = func() error { return Kill(cmd) }
}

// Kill terminates a started cmd.
func Kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
