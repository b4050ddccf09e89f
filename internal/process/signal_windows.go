//go:build windows

package process

import (
	"os"
	"syscall"
)

// signalProcess terminates p. Windows has no SIGTERM; every signal is a kill.
func signalProcess(p *os.Process, _ syscall.Signal) error {
	return p.Kill()
}
