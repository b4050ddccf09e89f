package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadPort(t *testing.T) {
	cases := []struct {
		name string
		data string
		want int
	}{
		{"explicit", `{"port": 9090}`, 9090},
		{"absent", `{}`, DefaultPort},
		{"other fields only", `{"name": "web"}`, DefaultPort},
		{"string number", `{"port": "9091"}`, 9091},
		{"fraction", `{"port": 80.5}`, DefaultPort},
		{"not a number", `{"port": "http"}`, DefaultPort},
		{"bool", `{"port": true}`, DefaultPort},
		{"null", `{"port": null}`, DefaultPort},
		{"out of range", `{"port": 70000}`, DefaultPort},
		{"zero", `{"port": 0}`, DefaultPort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Load(writeConfig(t, tc.data))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if c.Port != tc.want {
				t.Fatalf("Port = %d, want %d", c.Port, tc.want)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, `{"port": 8080}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Name != DefaultName || c.Command != DefaultCommand || c.StopWait != DefaultStopWait || c.StartDuration != 0 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Log.Dir != "logs" || c.Log.File != "server.log" || c.Log.MaxSizeMB != 10 {
		t.Fatalf("unexpected log defaults: %+v", c.Log)
	}
	if len(c.History.DSNs) != 0 || c.Metrics.Textfile != "" {
		t.Fatalf("history/metrics should be disabled by default: %+v", c)
	}
}

func TestLoadFull(t *testing.T) {
	c, err := Load(writeConfig(t, `{
		"port": 9000,
		"name": "web",
		"command": "nodeserver --port {port}",
		"work_dir": "/srv",
		"env": ["A=1"],
		"start_duration": "500ms",
		"stop_wait": "0s",
		"log": {"dir": "/var/log/web", "file": "events.log", "max_backups": 9, "compress": true},
		"history": {"dsns": ["sqlite:///tmp/h.db"]},
		"metrics": {"textfile": "/tmp/node.prom"}
	}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Name != "web" || c.Command != "nodeserver --port {port}" || c.WorkDir != "/srv" || len(c.Env) != 1 {
		t.Fatalf("unexpected base fields: %+v", c)
	}
	if c.StartDuration != 500*time.Millisecond || c.StopWait != 0 {
		t.Fatalf("unexpected durations: start=%v stop=%v", c.StartDuration, c.StopWait)
	}
	if c.Log.Dir != "/var/log/web" || c.Log.File != "events.log" || c.Log.MaxBackups != 9 || !c.Log.Compress || c.Log.MaxAgeDays != 7 {
		t.Fatalf("unexpected log config: %+v", c.Log)
	}
	if len(c.History.DSNs) != 1 || c.Metrics.Textfile != "/tmp/node.prom" {
		t.Fatalf("unexpected history/metrics: %+v %+v", c.History, c.Metrics)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrConfigRead) {
		t.Fatalf("expected ErrConfigRead, got %v", err)
	}
	var re *ReadError
	if !errors.As(err, &re) || errors.Is(err, ErrConfigParse) {
		t.Fatalf("expected *ReadError only, got %T", err)
	}
}

func TestLoadDirectoryIsReadError(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrConfigRead) {
		t.Fatalf("expected ErrConfigRead for a directory, got %v", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	for _, data := range []string{`{"port": `, `port = 9090`, ``} {
		_, err := Load(writeConfig(t, data))
		if !errors.Is(err, ErrConfigParse) {
			t.Fatalf("data %q: expected ErrConfigParse, got %v", data, err)
		}
		var pe *ParseError
		if !errors.As(err, &pe) || !strings.Contains(pe.Error(), "parse config") {
			t.Fatalf("data %q: expected *ParseError, got %T", data, err)
		}
	}
}

func TestLoadInvalidStopWait(t *testing.T) {
	_, err := Load(writeConfig(t, `{"stop_wait": "soon"}`))
	if !errors.Is(err, ErrConfigParse) {
		t.Fatalf("expected ErrConfigParse, got %v", err)
	}
}

func TestProcessSpecMergesEnvFiles(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, []byte("A=1\n#comment\nB=two\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	c, err := Load(writeConfig(t, `{"port": 8123, "env": ["B=three"], "env_files": ["`+dotenv+`"]}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	spec, err := c.ProcessSpec()
	if err != nil {
		t.Fatalf("ProcessSpec: %v", err)
	}
	if spec.Port != 8123 || spec.Name != DefaultName || spec.Command != DefaultCommand {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	want := []string{"A=1", "B=two", "B=three"}
	if strings.Join(spec.Env, ",") != strings.Join(want, ",") {
		t.Fatalf("Env = %v, want %v", spec.Env, want)
	}
}

func TestProcessSpecMissingEnvFile(t *testing.T) {
	c := Config{EnvFiles: []string{filepath.Join(t.TempDir(), "missing.env")}}
	_, err := c.ProcessSpec()
	if !errors.Is(err, ErrConfigRead) {
		t.Fatalf("expected ErrConfigRead for missing env file, got %v", err)
	}
}
