//go:build !unix

package supervisor

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

// No graceful signal is available; terminate kills outright.
func terminate(cmd *exec.Cmd) error {
	return kill(cmd)
}

func kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
