package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/nodectl/internal/config"
	"github.com/loykin/nodectl/internal/history"
	"github.com/loykin/nodectl/internal/history/factory"
	"github.com/loykin/nodectl/internal/logger"
	"github.com/loykin/nodectl/internal/metrics"
	"github.com/loykin/nodectl/internal/supervisor"
)

// logLines is how many trailing event log lines the logs action prints.
const logLines = 10

// registry holds the nodectl collectors for the textfile export.
var registry = prometheus.NewRegistry()

// reportedError marks a failure whose message was already printed.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

type app struct {
	configPath string
	out        io.Writer
	console    *slog.Logger

	// set up by the first action and kept for the lifetime of the app
	cfg         config.Config
	sink        *logger.FileSink
	sup         *supervisor.Supervisor
	closers     []io.Closer
	historyOpen bool
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		configPath: config.DefaultPath,
		out:        out,
		console:    logger.NewConsole(errOut, slog.LevelWarn),
	}
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format+"\n", args...)
}

// setup loads the configuration, initializes the event log, seeds the
// metrics from the last export and builds the supervisor.
func (a *app) setup() error {
	if a.sup != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	spec, err := cfg.ProcessSpec()
	if err != nil {
		return err
	}
	sink, err := logger.OpenWithFallback(cfg.Log, a.console)
	if err != nil {
		return fmt.Errorf("initialize event log: %w", err)
	}
	if err := metrics.Register(registry); err != nil {
		a.console.Warn("metrics registration failed", "error", err)
	}
	if path := cfg.Metrics.Textfile; path != "" {
		if err := metrics.LoadTextfile(path); err != nil {
			a.console.Warn("metrics textfile not loaded", "path", path, "error", err)
		}
	}

	sup := supervisor.New(spec, sink)
	sup.SetStopWait(cfg.StopWait)

	a.cfg, a.sink, a.sup = cfg, sink, sup
	a.closers = append(a.closers, sink)
	return nil
}

// run performs one action.
func (a *app) run(ctx context.Context, action string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.setup(); err != nil {
		return err
	}

	switch action {
	case "start":
		changed, err := a.start(ctx)
		if changed {
			a.exportMetrics()
		}
		return err
	case "stop":
		changed, err := a.stop(ctx)
		if changed {
			a.exportMetrics()
		}
		return err
	case "status":
		a.status()
		return nil
	case "logs":
		return a.logs()
	}
	return fmt.Errorf("unknown action %q", action)
}

// Close releases the event log and history sinks.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.console.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// start reports whether the supervisor attempted a launch.
func (a *app) start(ctx context.Context) (bool, error) {
	if a.sup.Status().Running() {
		a.printf("Node is already running.")
		return false, nil
	}
	a.openHistory()
	a.printf("Starting the server node on port %d...", a.cfg.Port)
	res, err := a.sup.Start(ctx)
	switch {
	case errors.Is(err, supervisor.ErrProcessLaunch):
		// reported and logged; still a recognized action
		a.printf("Failed to start the node.")
		return true, nil
	case err != nil:
		return true, err
	case res.AlreadyRunning:
		a.printf("Node is already running.")
		return false, nil
	}
	a.printf("Node started with PID: %d", res.PID)
	return true, nil
}

// stop reports whether the supervisor signalled the node.
func (a *app) stop(ctx context.Context) (bool, error) {
	st := a.sup.Status()
	if !st.Running() {
		a.printf("No node is currently running.")
		return false, nil
	}
	a.openHistory()
	a.printf("Stopping the server node with PID: %d...", st.PID)
	res, err := a.sup.Stop(ctx)
	if err != nil {
		a.printf("Failed to stop the node: %v", err)
		return true, &reportedError{err: err}
	}
	if res.NotRunning {
		a.printf("No node is currently running.")
		return false, nil
	}
	a.printf("Node stopped.")
	return true, nil
}

func (a *app) status() {
	if st := a.sup.Status(); st.Running() {
		a.printf("Node is running with PID: %d", st.PID)
		return
	}
	a.printf("Node is not running.")
}

func (a *app) logs() error {
	lines, err := a.sink.Tail(logLines)
	if errors.Is(err, logger.ErrLogUnavailable) {
		a.printf("Log file does not exist.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	for _, l := range lines {
		_, _ = fmt.Fprintln(a.out, l)
	}
	return nil
}

// openHistory attaches a sink per DSN to the supervisor, once. Only actions
// that change state call it, so status and logs never dial a remote sink.
// A sink that cannot be opened is skipped with a warning.
func (a *app) openHistory() {
	if a.historyOpen {
		return
	}
	a.historyOpen = true
	var sinks []history.Sink
	for _, dsn := range a.cfg.History.DSNs {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			a.console.Warn("history sink disabled", "dsn", dsn, "error", err)
			continue
		}
		sinks = append(sinks, s)
		if c, ok := s.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	}
	a.sup.SetHistory(sinks...)
}

// exportMetrics rewrites the textfile after a state change, with the running
// gauge taken from the supervisor.
func (a *app) exportMetrics() {
	path := a.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	metrics.SetRunning(a.cfg.Name, a.sup.Status().Running())
	if err := metrics.WriteTextfile(path, registry); err != nil {
		a.console.Warn("metrics textfile export failed", "path", path, "error", err)
	}
}
