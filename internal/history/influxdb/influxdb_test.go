package influxdb

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/nodectl/internal/history"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		want    Options
		wantErr bool
	}{
		{dsn: "influxdb://localhost:8086/acme/nodes?token=t0k", want: Options{URL: "http://localhost:8086", Org: "acme", Bucket: "nodes", Token: "t0k"}},
		{dsn: "influxdbs://influx.example.com/acme/nodes", want: Options{URL: "https://influx.example.com", Org: "acme", Bucket: "nodes"}},
		{dsn: "influxdb://localhost:8086/acme", wantErr: true},
		{dsn: "influxdb://localhost:8086/acme/nodes/extra", wantErr: true},
		{dsn: "influxdb:///acme/nodes", wantErr: true},
		{dsn: "http://localhost:8086/acme/nodes", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDSN(tt.dsn)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDSN(%q): expected error", tt.dsn)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDSN(%q) = %+v, %v; want %+v", tt.dsn, got, err, tt.want)
		}
	}
}

func TestPointLineProtocol(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	line := write.PointToLineProtocol(Point(history.Event{
		Type:       history.EventStopFailed,
		OccurredAt: at,
		Name:       "node",
		PID:        42,
		Port:       8000,
		Error:      "no such process",
	}), time.Second)
	want := `node_history,name=node,type=stop_failed error="no such process",pid=42i,port=8000i 1700000000`
	if strings.TrimSpace(line) != want {
		t.Fatalf("line protocol = %q, want %q", line, want)
	}

	line = write.PointToLineProtocol(Point(history.Event{Type: history.EventStart, OccurredAt: at, Name: "node", PID: 1, Port: 80}), time.Second)
	if strings.Contains(line, "error=") {
		t.Fatalf("empty error must not be written: %q", line)
	}
}

func TestInfluxDBSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	const (
		org    = "nodectl"
		bucket = "history"
		token  = "test-token"
	)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "influxdb:2.7-alpine",
			ExposedPorts: []string{"8086/tcp"},
			Env: map[string]string{
				"DOCKER_INFLUXDB_INIT_MODE":        "setup",
				"DOCKER_INFLUXDB_INIT_USERNAME":    "admin",
				"DOCKER_INFLUXDB_INIT_PASSWORD":    "adminpassword",
				"DOCKER_INFLUXDB_INIT_ORG":         org,
				"DOCKER_INFLUXDB_INIT_BUCKET":      bucket,
				"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": token,
			},
			WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start InfluxDB container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate InfluxDB container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "8086")
	if err != nil {
		t.Fatal(err)
	}
	addr := host + ":" + port.Port()

	sink, err := New(fmt.Sprintf("influxdb://%s/%s/%s?token=%s", addr, org, bucket, token))
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	now := time.Now().UTC()
	for i, typ := range []history.EventType{history.EventStart, history.EventStop} {
		e := history.Event{Type: typ, OccurredAt: now.Add(time.Duration(i) * time.Millisecond), Name: "influx-node", PID: 99, Port: 8000}
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Send %s: %v", typ, err)
		}
	}

	client := influxdb2.NewClient("http://"+addr, token)
	defer client.Close()
	query := fmt.Sprintf(`from(bucket: %q) |> range(start: -1h) |> filter(fn: (r) => r._measurement == %q and r._field == "pid")`, bucket, Measurement)
	res, err := client.QueryAPI(org).Query(ctx, query)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var n int
	for res.Next() {
		n++
	}
	if res.Err() != nil {
		t.Fatalf("query result: %v", res.Err())
	}
	if n != 2 {
		t.Fatalf("expected 2 pid points, got %d", n)
	}
}
