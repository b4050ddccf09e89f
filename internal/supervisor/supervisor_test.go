package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/nodectl/internal/history"
	"github.com/loykin/nodectl/internal/logger"
	"github.com/loykin/nodectl/internal/process"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func sleeperSpec(name string) process.Spec {
	return process.Spec{Name: name, Command: "sleep {port}", Port: 30}
}

// stopOnCleanup kills whatever the supervisor still holds when the test ends.
func stopOnCleanup(t *testing.T, s *Supervisor) {
	t.Cleanup(func() {
		s.mu.Lock()
		p := s.proc
		s.mu.Unlock()
		if p != nil && !p.Exited() {
			_ = p.Signal(syscall.SIGKILL)
			p.WaitExit(2 * time.Second)
		}
	})
}

type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
	err    error
}

func (r *recordingSink) Send(_ context.Context, e history.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) types() []history.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]history.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func TestNewSupervisorIsStopped(t *testing.T) {
	s := New(sleeperSpec("fresh"), logger.NewMemorySink())
	st := s.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.Zero(t, st.PID)
	assert.False(t, st.Running())
	assert.Equal(t, "stopped", st.State.String())
}

func TestStartTwiceIsNoop(t *testing.T) {
	requireUnix(t)
	log := logger.NewMemorySink()
	s := New(sleeperSpec("twice"), log)
	stopOnCleanup(t, s)
	ctx := context.Background()

	first, err := s.Start(ctx)
	require.NoError(t, err)
	require.False(t, first.AlreadyRunning)
	require.Positive(t, first.PID)
	assert.Equal(t, Status{State: StateRunning, PID: first.PID}, s.Status())

	second, err := s.Start(ctx)
	require.NoError(t, err)
	assert.True(t, second.AlreadyRunning)
	assert.Equal(t, first.PID, second.PID)
	assert.Len(t, log.Lines(), 1)
}

func TestStopTwiceReportsNotRunning(t *testing.T) {
	requireUnix(t)
	log := logger.NewMemorySink()
	s := New(sleeperSpec("stop2"), log)
	stopOnCleanup(t, s)
	ctx := context.Background()

	started, err := s.Start(ctx)
	require.NoError(t, err)
	stopped, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopResult{PID: started.PID}, stopped)
	assert.Equal(t, Status{State: StateStopped}, s.Status())

	again, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.True(t, again.NotRunning)
}

func TestStopOnFreshSupervisor(t *testing.T) {
	s := New(sleeperSpec("idle"), logger.NewMemorySink())
	res, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, res.NotRunning)
}

func TestLaunchFailureStaysStopped(t *testing.T) {
	requireUnix(t)
	log := logger.NewMemorySink()
	hs := &recordingSink{}
	s := New(process.Spec{Name: "broken", Command: "/nonexistent/binary-xyz", Port: 8000}, log)
	s.SetHistory(hs)

	_, err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrProcessLaunch)
	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "/nonexistent/binary-xyz", le.Command)
	assert.Equal(t, StateStopped, s.Status().State)

	lines := log.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], " - ERROR - Failed to start the node: ")
	assert.Equal(t, []history.EventType{history.EventStartFailed}, hs.types())
}

func TestEarlyExitInsideStartDurationFails(t *testing.T) {
	requireUnix(t)
	spec := process.Spec{Name: "early", Command: "sh -c 'exit 3'", Port: 8000, StartDuration: 2 * time.Second}
	s := New(spec, logger.NewMemorySink())

	_, err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrProcessLaunch)
	assert.False(t, s.Status().Running(), "supervisor should remain stopped")
}

func TestSignalFailureKeepsRunning(t *testing.T) {
	requireUnix(t)
	log := logger.NewMemorySink()
	hs := &recordingSink{}
	s := New(process.Spec{Name: "gone", Command: "sleep {port}", Port: 30}, log)
	s.SetHistory(hs)
	ctx := context.Background()

	started, err := s.Start(ctx)
	require.NoError(t, err)
	// terminate the child behind the supervisor's back
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	require.NoError(t, p.Signal(syscall.SIGKILL))
	require.True(t, p.WaitExit(3*time.Second), "child did not exit")

	_, err = s.Stop(ctx)
	require.ErrorIs(t, err, ErrSignalDelivery)
	var se *SignalError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, started.PID, se.PID)
	assert.Equal(t, Status{State: StateRunning, PID: started.PID}, s.Status())

	lines := log.Lines()
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[len(lines)-1], fmt.Sprintf(" - ERROR - Failed to stop the node with PID: %d: ", started.PID))
	assert.Equal(t, []history.EventType{history.EventStart, history.EventStopFailed}, hs.types())
}

func TestStopEscalatesToKill(t *testing.T) {
	requireUnix(t)
	spec := process.Spec{
		Name:          "stubborn",
		Command:       `trap "" TERM; sleep 30`,
		Port:          8000,
		StartDuration: 300 * time.Millisecond,
	}
	s := New(spec, logger.NewMemorySink())
	s.SetStopWait(200 * time.Millisecond)
	stopOnCleanup(t, s)
	ctx := context.Background()

	_, err := s.Start(ctx)
	require.NoError(t, err)
	res, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.True(t, res.Escalated, "expected escalation to SIGKILL")
	assert.False(t, s.Status().Running())
}

func TestHistoryFailureIsLoggedOnly(t *testing.T) {
	requireUnix(t)
	log := logger.NewMemorySink()
	s := New(sleeperSpec("hist"), log)
	good := &recordingSink{}
	s.SetHistory(&recordingSink{err: errors.New("db down")}, good)
	stopOnCleanup(t, s)
	ctx := context.Background()

	_, err := s.Start(ctx)
	require.NoError(t, err)
	_, err = s.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, []history.EventType{history.EventStart, history.EventStop}, good.types())

	good.mu.Lock()
	e := good.events[0]
	good.mu.Unlock()
	assert.Equal(t, "hist", e.Name)
	assert.Equal(t, 30, e.Port)
	assert.Positive(t, e.PID)
	assert.Empty(t, e.Error)

	var warns int
	for _, l := range log.Lines() {
		if strings.Contains(l, " - WARN - Failed to record") && strings.Contains(l, "db down") {
			warns++
		}
	}
	assert.Equal(t, 2, warns, "history warnings in %v", log.Lines())
}

// start, status, stop, status, logs
func TestFullScenarioWithFileSink(t *testing.T) {
	requireUnix(t)
	sink, err := logger.Open(logger.Config{Dir: t.TempDir(), File: "server.log"})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	s := New(sleeperSpec("scenario"), sink)
	stopOnCleanup(t, s)
	ctx := context.Background()

	started, err := s.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{State: StateRunning, PID: started.PID}, s.Status())
	_, err = s.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, s.Status().Running(), "expected stopped after stop")

	lines, err := sink.Tail(10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], fmt.Sprintf(" - INFO - Node started with PID: %d", started.PID)), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], fmt.Sprintf(" - INFO - Node stopped (PID: %d).", started.PID)), lines[1])
}

func TestConcurrentStartHoldsOneProcess(t *testing.T) {
	requireUnix(t)
	s := New(sleeperSpec("race"), logger.NewMemorySink())
	stopOnCleanup(t, s)

	var wg sync.WaitGroup
	pids := make([]int, 8)
	for i := range pids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Start(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			pids[i] = res.PID
		}(i)
	}
	wg.Wait()
	for _, p := range pids[1:] {
		assert.Equal(t, pids[0], p, "expected a single pid, got %v", pids)
	}
}
