package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/nodectl/internal/history"
	"github.com/loykin/nodectl/internal/metrics"
	"github.com/loykin/nodectl/internal/process"
)

// DefaultStopWait is how long Stop waits for the child after SIGTERM.
const DefaultStopWait = 3 * time.Second

// historyTimeout bounds each sink's Send.
const historyTimeout = 5 * time.Second

// EventLog receives one record per lifecycle event. logger.FileSink and
// logger.MemorySink satisfy it.
type EventLog interface {
	Record(level slog.Level, msg string)
}

type State int32

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Status is a snapshot of what the supervisor believes. PID is 0 when stopped.
type Status struct {
	State State
	PID   int
}

func (s Status) Running() bool { return s.State == StateRunning }

// StartResult describes a Start that did not fail.
type StartResult struct {
	AlreadyRunning bool
	PID            int
}

// StopResult describes a Stop that did not fail.
type StopResult struct {
	NotRunning bool
	PID        int
	Escalated  bool // SIGKILL was needed after stop wait
}

// Supervisor owns at most one child process for spec.
//
// The mutex serializes callers inside one manager process only. Separate
// nodectl invocations each start with an empty Supervisor.
type Supervisor struct {
	mu       sync.Mutex
	spec     process.Spec
	proc     *process.Process
	log      EventLog
	history  []history.Sink
	stopWait time.Duration
}

func New(spec process.Spec, log EventLog) *Supervisor {
	return &Supervisor{spec: spec, log: log, stopWait: DefaultStopWait}
}

// SetHistory configures history sinks (thread-safe)
func (s *Supervisor) SetHistory(sinks ...history.Sink) {
	s.mu.Lock()
	s.history = append([]history.Sink(nil), sinks...)
	s.mu.Unlock()
}

// SetStopWait sets the grace period between SIGTERM and SIGKILL. Zero
// disables waiting and escalation.
func (s *Supervisor) SetStopWait(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	s.stopWait = d
	s.mu.Unlock()
}

// Status never probes the OS.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return Status{State: StateStopped}
	}
	return Status{State: StateRunning, PID: s.proc.PID()}
}

// Start launches the node unless one is already held.
func (s *Supervisor) Start(ctx context.Context) (StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		return StartResult{AlreadyRunning: true, PID: s.proc.PID()}, nil
	}

	proc := process.New(s.spec)
	if err := proc.Start(); err != nil {
		return StartResult{}, s.launchFailed(ctx, 0, err)
	}
	pid := proc.PID()
	if err := proc.EnforceStartDuration(s.spec.StartDuration); err != nil {
		return StartResult{}, s.launchFailed(ctx, pid, err)
	}

	s.proc = proc
	s.log.Record(slog.LevelInfo, fmt.Sprintf("Node started with PID: %d", pid))
	metrics.IncStart(s.spec.Name)
	metrics.SetRunning(s.spec.Name, true)
	s.emit(ctx, history.EventStart, pid, nil)
	return StartResult{PID: pid}, nil
}

func (s *Supervisor) launchFailed(ctx context.Context, pid int, err error) error {
	lerr := &LaunchError{Command: s.spec.Command, Err: err}
	s.log.Record(slog.LevelError, fmt.Sprintf("Failed to start the node: %v", err))
	metrics.IncStartFailure(s.spec.Name)
	metrics.SetRunning(s.spec.Name, false)
	s.emit(ctx, history.EventStartFailed, pid, err)
	return lerr
}

// Stop terminates the held node. When SIGTERM cannot be delivered the node
// stays held with the same PID and a *SignalError is returned.
func (s *Supervisor) Stop(ctx context.Context) (StopResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return StopResult{NotRunning: true}, nil
	}

	pid := s.proc.PID()
	if err := s.proc.Signal(syscall.SIGTERM); err != nil {
		s.log.Record(slog.LevelError, fmt.Sprintf("Failed to stop the node with PID: %d: %v", pid, err))
		metrics.IncStopFailure(s.spec.Name)
		s.emit(ctx, history.EventStopFailed, pid, err)
		return StopResult{}, &SignalError{PID: pid, Err: err}
	}

	escalated := s.awaitExit(pid)

	s.proc = nil
	s.log.Record(slog.LevelInfo, fmt.Sprintf("Node stopped (PID: %d).", pid))
	metrics.IncStop(s.spec.Name)
	metrics.SetRunning(s.spec.Name, false)
	s.emit(ctx, history.EventStop, pid, nil)
	return StopResult{PID: pid, Escalated: escalated}, nil
}

// awaitExit waits stopWait for the child and escalates to SIGKILL when it is
// still alive. It reports whether SIGKILL was sent.
func (s *Supervisor) awaitExit(pid int) bool {
	if s.stopWait <= 0 || s.proc.WaitExit(s.stopWait) {
		return false
	}
	if err := s.proc.Signal(syscall.SIGKILL); err != nil {
		s.log.Record(slog.LevelWarn, fmt.Sprintf("Failed to kill the node with PID: %d: %v", pid, err))
		return false
	}
	// reaping after SIGKILL is quick; do not block stop on a stuck zombie
	if !s.proc.WaitExit(time.Second) {
		s.log.Record(slog.LevelWarn, fmt.Sprintf("Node with PID: %d did not exit after SIGKILL", pid))
	}
	return true
}

// emit fans e out to every sink. Failures are logged and otherwise ignored.
func (s *Supervisor) emit(ctx context.Context, typ history.EventType, pid int, cause error) {
	if len(s.history) == 0 {
		return
	}
	e := history.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Name:       s.spec.Name,
		PID:        pid,
		Port:       s.spec.Port,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	for _, h := range s.history {
		sendCtx, cancel := context.WithTimeout(ctx, historyTimeout)
		err := h.Send(sendCtx, e)
		cancel()
		if err != nil {
			s.log.Record(slog.LevelWarn, fmt.Sprintf("Failed to record %s event in history: %v", typ, err))
		}
	}
}
