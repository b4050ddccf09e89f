//go:build !windows

package process

import "os/exec"

// getShellCommand returns a shell command for Unix systems. args become the
// script's $0, $1, ...
func getShellCommand(script string, args ...string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", append([]string{"-c", script}, args...)...)
}

// getTrueCommand returns a command that always succeeds on Unix systems
func getTrueCommand() *exec.Cmd {
	return exec.Command("/bin/true")
}
