package config

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/nodectl/internal/logger"
	"github.com/loykin/nodectl/internal/process"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	DefaultPath     = "config.json"
	DefaultPort     = 8000
	DefaultName     = "node"
	DefaultCommand  = "python3 -m http.server {port}"
	DefaultStopWait = 3 * time.Second
)

// Config is the manager configuration. It is loaded once and passed by value.
type Config struct {
	Name          string
	Port          int
	Command       string
	WorkDir       string
	Env           []string
	EnvFiles      []string
	StartDuration time.Duration
	StopWait      time.Duration
	Log           logger.Config
	History       HistoryConfig
	Metrics       MetricsConfig
}

// HistoryConfig lists the DSNs of history sinks receiving lifecycle events.
type HistoryConfig struct {
	DSNs []string
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string
}

// fileConfig mirrors the JSON document. port is decoded separately because
// an invalid value falls back to the default instead of failing.
type fileConfig struct {
	Name          string        `mapstructure:"name"`
	Command       string        `mapstructure:"command"`
	WorkDir       string        `mapstructure:"work_dir"`
	Env           []string      `mapstructure:"env"`
	EnvFiles      []string      `mapstructure:"env_files"`
	StartDuration time.Duration `mapstructure:"start_duration"`
	StopWait      *string       `mapstructure:"stop_wait"`
	Log           *logConfig    `mapstructure:"log"`
	History       *struct {
		DSNs []string `mapstructure:"dsns"`
	} `mapstructure:"history"`
	Metrics *struct {
		Textfile string `mapstructure:"textfile"`
	} `mapstructure:"metrics"`
}

type logConfig struct {
	Dir        string `mapstructure:"dir"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads the JSON document at path. A missing or unreadable file yields a
// *ReadError, malformed content a *ParseError.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) {
			return Config{}, &ReadError{Path: path, Err: err}
		}
		return Config{}, &ParseError{Path: path, Err: err}
	}
	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Config{}, &ParseError{Path: path, Err: err}
	}

	c := Config{
		Name:          valOr(fc.Name, DefaultName),
		Port:          portOrDefault(v.Get("port")),
		Command:       valOr(fc.Command, DefaultCommand),
		WorkDir:       fc.WorkDir,
		Env:           fc.Env,
		EnvFiles:      fc.EnvFiles,
		StartDuration: fc.StartDuration,
		StopWait:      DefaultStopWait,
	}
	if fc.StopWait != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*fc.StopWait))
		if err != nil {
			return Config{}, &ParseError{Path: path, Err: err}
		}
		c.StopWait = d
	}
	if fc.Log != nil {
		c.Log = logger.Config{
			Dir:        fc.Log.Dir,
			File:       fc.Log.File,
			MaxSizeMB:  fc.Log.MaxSizeMB,
			MaxBackups: fc.Log.MaxBackups,
			MaxAgeDays: fc.Log.MaxAgeDays,
			Compress:   fc.Log.Compress,
		}
	}
	c.Log = c.Log.WithDefaults()
	if fc.History != nil {
		c.History.DSNs = fc.History.DSNs
	}
	if fc.Metrics != nil {
		c.Metrics.Textfile = fc.Metrics.Textfile
	}
	return c, nil
}

// portOrDefault accepts integral JSON numbers and decimal strings in the
// 1..65535 range; anything else means DefaultPort.
func portOrDefault(raw any) int {
	var n int
	switch x := raw.(type) {
	case nil, bool:
		return DefaultPort
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return DefaultPort
		}
		n = int(x)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return DefaultPort
		}
		n = i
	default:
		i, err := cast.ToIntE(x)
		if err != nil {
			return DefaultPort
		}
		n = i
	}
	if n < 1 || n > 65535 {
		return DefaultPort
	}
	return n
}

// ProcessSpec builds the launch description of the node and reads env_files.
// A missing env file is a *ReadError for whichever action builds the spec.
func (c Config) ProcessSpec() (process.Spec, error) {
	env := make([]string, 0, len(c.Env))
	for _, p := range c.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return process.Spec{}, &ReadError{Path: p, Err: err}
		}
		env = append(env, pairs...)
	}
	// explicit env entries override file values
	env = append(env, c.Env...)
	return process.Spec{
		Name:          c.Name,
		Command:       c.Command,
		Port:          c.Port,
		WorkDir:       c.WorkDir,
		Env:           env,
		StartDuration: c.StartDuration,
		Log:           c.Log,
	}, nil
}

// LoadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes).
// Lines starting with # are ignored. Order is preserved.
func LoadEnvFile(path string) ([]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			out = append(out, k+"="+v)
		}
	}
	return out, nil
}

func valOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
