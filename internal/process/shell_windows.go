//go:build windows

package process

import "os/exec"

// getShellCommand returns a shell command for Windows systems. cmd.exe has
// no positional parameters, so args are appended to the command line.
func getShellCommand(script string, args ...string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", append([]string{"/C", script}, args[min(1, len(args)):]...)...)
}

// getTrueCommand returns a command that always succeeds on Windows systems
func getTrueCommand() *exec.Cmd {
	return exec.Command("cmd", "/C", "exit 0")
}
