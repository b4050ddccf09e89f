package influxdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/loykin/nodectl/internal/history"
)

// Measurement is the InfluxDB measurement events are written to.
const Measurement = "node_history"

const defaultPingTimeout = 5 * time.Second

// Options is a parsed InfluxDB DSN.
type Options struct {
	URL    string
	Org    string
	Bucket string
	Token  string
}

// ParseDSN reads "influxdb://host:8086/<org>/<bucket>?token=...".
// "influxdbs://" talks HTTPS.
func ParseDSN(dsn string) (Options, error) {
	u, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return Options{}, err
	}
	scheme := "http"
	switch strings.ToLower(u.Scheme) {
	case "influxdb":
	case "influxdbs":
		scheme = "https"
	default:
		return Options{}, fmt.Errorf("unsupported InfluxDB scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Options{}, errors.New("InfluxDB DSN requires a host")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Options{}, errors.New("InfluxDB DSN path must be /<org>/<bucket>")
	}
	return Options{
		URL:    scheme + "://" + u.Host,
		Org:    parts[0],
		Bucket: parts[1],
		Token:  u.Query().Get("token"),
	}, nil
}

// Sink writes each event as one point with blocking writes, so a failed
// write is reported to the caller.
type Sink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// New parses dsn, checks the server is healthy and returns a sink.
func New(dsn string) (*Sink, error) {
	o, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	client := influxdb2.NewClient(o.URL, o.Token)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping InfluxDB %s: %w", o.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("ping InfluxDB %s: server not healthy", o.URL)
	}
	return &Sink{client: client, write: client.WriteAPIBlocking(o.Org, o.Bucket)}, nil
}

// Point converts e to the point written by Send. Name and type are tags;
// pid, port and error are fields.
func Point(e history.Event) *write.Point {
	fields := map[string]interface{}{
		"pid":  int64(e.PID),
		"port": int64(e.Port),
	}
	if e.Error != "" {
		fields["error"] = e.Error
	}
	return write.NewPoint(
		Measurement,
		map[string]string{
			"name": e.Name,
			"type": string(e.Type),
		},
		fields,
		e.OccurredAt,
	)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	if err := s.write.WritePoint(ctx, Point(e)); err != nil {
		return fmt.Errorf("write event to InfluxDB: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
