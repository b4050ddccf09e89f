//go:build !windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// signalProcess signals the process group led by p, falling back to p alone
// when the group is gone.
func signalProcess(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return p.Signal(sig)
	}
	return err
}
