//go:build !unix

package process

import "os/exec"

// Without process groups only the direct child can be killed.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func signaled(exitErr *exec.ExitError) bool {
	return false
}
