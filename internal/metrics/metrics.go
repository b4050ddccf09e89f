package metrics

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	nodeStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodectl",
			Subsystem: "node",
			Name:      "starts_total",
			Help:      "Number of successful node starts.",
		}, []string{"name"},
	)
	nodeStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodectl",
			Subsystem: "node",
			Name:      "start_failures_total",
			Help:      "Number of node launches that failed.",
		}, []string{"name"},
	)
	nodeStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodectl",
			Subsystem: "node",
			Name:      "stops_total",
			Help:      "Number of stops (graceful or kill).",
		}, []string{"name"},
	)
	nodeStopFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodectl",
			Subsystem: "node",
			Name:      "stop_failures_total",
			Help:      "Number of stop requests whose termination signal was not delivered.",
		}, []string{"name"},
	)
	nodeRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nodectl",
			Subsystem: "node",
			Name:      "running",
			Help:      "Whether the supervisor believes the node is running (1) or not (0).",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{nodeStarts, nodeStartFailures, nodeStops, nodeStopFailures, nodeRunning}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format, for pickup by a node_exporter textfile collector. The file is
// replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}

// LoadTextfile raises the counters to the values found in a textfile written
// by an earlier invocation, so totals keep growing across short-lived runs.
// Counters already at or above the stored value are left alone. A missing
// file is not an error; the running gauge is never restored.
func LoadTextfile(path string) error {
	if !regOK.Load() {
		return nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	parser := expfmt.NewTextParser(model.LegacyValidation)
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return err
	}
	counters := map[string]*prometheus.CounterVec{
		"nodectl_node_starts_total":         nodeStarts,
		"nodectl_node_start_failures_total": nodeStartFailures,
		"nodectl_node_stops_total":          nodeStops,
		"nodectl_node_stop_failures_total":  nodeStopFailures,
	}
	for fqName, vec := range counters {
		mf, ok := families[fqName]
		if !ok {
			continue
		}
		for _, m := range mf.GetMetric() {
			name := labelValue(m, "name")
			if name == "" {
				continue
			}
			c := vec.WithLabelValues(name)
			if delta := m.GetCounter().GetValue() - counterValue(c); delta > 0 {
				c.Add(delta)
			}
		}
	}
	return nil
}

func labelValue(m *dto.Metric, label string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == label {
			return lp.GetValue()
		}
	}
	return ""
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		nodeStarts.WithLabelValues(name).Inc()
	}
}

func IncStartFailure(name string) {
	if regOK.Load() {
		nodeStartFailures.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		nodeStops.WithLabelValues(name).Inc()
	}
}

func IncStopFailure(name string) {
	if regOK.Load() {
		nodeStopFailures.WithLabelValues(name).Inc()
	}
}

func SetRunning(name string, running bool) {
	if regOK.Load() {
		var value float64
		if running {
			value = 1
		}
		nodeRunning.WithLabelValues(name).Set(value)
	}
}
