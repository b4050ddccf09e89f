package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/nodectl/internal/env"
)

// Process is the single child launched for a Spec. Start may be called once.
type Process struct {
	spec      Spec
	mu        sync.Mutex
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	exited    bool
	exitErr   error
	waitDone  chan struct{} // closed by the reaper when cmd.Wait returns
}

func New(spec Spec) *Process {
	return &Process{spec: spec, waitDone: make(chan struct{})}
}

// ConfigureCmd builds the *exec.Cmd: workdir, environment (inherited, then
// PORT, then spec.Env with ${VAR} expansion), process group and
// stdout/stderr files. The returned files are the caller's copies and must
// be closed after Start.
func (r *Process) ConfigureCmd() (*exec.Cmd, []*os.File, error) {
	spec := r.spec
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	e := env.FromOS()
	e.Set("PORT", strconv.Itoa(spec.Port))
	e.Apply(spec.Env)
	cmd.Env = e.Slice()
	configureSysProcAttr(cmd)

	outF, errF, err := spec.Log.ProcessFiles(spec.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("open output files: %w", err)
	}
	if outF == nil {
		null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return nil, nil, err
		}
		outF, errF = null, null
	}
	cmd.Stdout = outF
	cmd.Stderr = errF
	files := []*os.File{outF}
	if errF != outF {
		files = append(files, errF)
	}
	return cmd, files, nil
}

// Start launches the child and a reaper goroutine that records its exit.
func (r *Process) Start() error {
	if err := r.spec.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	if r.cmd != nil {
		r.mu.Unlock()
		return errors.New("process already started")
	}
	r.mu.Unlock()

	cmd, files, err := r.ConfigureCmd()
	if err != nil {
		return err
	}
	startErr := cmd.Start()
	// the child holds its own descriptors now
	for _, f := range files {
		_ = f.Close()
	}
	if startErr != nil {
		return startErr
	}

	r.mu.Lock()
	r.cmd = cmd
	r.pid = cmd.Process.Pid
	r.startedAt = time.Now()
	r.mu.Unlock()

	go r.reap(cmd)
	return nil
}

func (r *Process) reap(cmd *exec.Cmd) {
	err := cmd.Wait()
	r.mu.Lock()
	r.exited = true
	r.exitErr = err
	close(r.waitDone)
	r.mu.Unlock()
}

// PID returns the child pid, or 0 before Start.
func (r *Process) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid
}

func (r *Process) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// Exited reports whether the reaper has collected the child's exit status.
func (r *Process) Exited() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exited
}

// ExitErr is the result of cmd.Wait once Exited is true.
func (r *Process) ExitErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitErr
}

// Signal delivers sig to the child's process group. A child that was already
// reaped yields os.ErrProcessDone; its pid may belong to someone else by now.
func (r *Process) Signal(sig syscall.Signal) error {
	r.mu.Lock()
	cmd := r.cmd
	exited := r.exited
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return errors.New("process not started")
	}
	if exited {
		return os.ErrProcessDone
	}
	return signalProcess(cmd.Process, sig)
}

// WaitExit waits up to d for the child to exit and reports whether it did.
func (r *Process) WaitExit(d time.Duration) bool {
	if d <= 0 {
		return r.Exited()
	}
	select {
	case <-r.waitDone:
		return true
	case <-time.After(d):
		return false
	}
}

// EnforceStartDuration waits until d ensuring the child stays up; returns an
// error if it exits early.
func (r *Process) EnforceStartDuration(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if r.PID() == 0 {
		return errBeforeStart(d, nil)
	}
	if r.WaitExit(d) {
		return errBeforeStart(d, r.ExitErr())
	}
	return nil
}
