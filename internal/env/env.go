package env

import (
	"os"
	"sort"
	"strings"
)

// Env composes a child environment. Later assignments override earlier ones.
type Env struct {
	vars map[string]string
}

func New() *Env {
	return &Env{vars: make(map[string]string)}
}

// FromOS starts from the current process environment.
func FromOS() *Env {
	e := New()
	for _, kv := range os.Environ() {
		if k, v, ok := split(kv); ok {
			e.vars[k] = v
		}
	}
	return e
}

// Set sets K=V verbatim.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	e.vars[k] = v
}

// Get returns the current value of k.
func (e *Env) Get(k string) (string, bool) {
	v, ok := e.vars[k]
	return v, ok
}

// Apply assigns each "K=V" pair in order. ${VAR} references in V are
// expanded against the variables composed so far, so "PATH=${PATH}:/opt/bin"
// extends the inherited value. Unknown references expand to "". Entries
// without '=' or with an empty key are skipped.
func (e *Env) Apply(pairs []string) {
	for _, kv := range pairs {
		k, v, ok := split(kv)
		if !ok {
			continue
		}
		e.vars[k] = e.Expand(v)
	}
}

// Expand replaces ${VAR} references in s. A lone '$' or an unterminated
// "${" is kept as is.
func (e *Env) Expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(e.vars[s[i+2:i+2+j]])
		s = s[i+3+j:]
	}
}

// Slice returns the environment as "K=V" pairs sorted by key.
func (e *Env) Slice() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e.vars[k])
	}
	return out
}

func split(kv string) (string, string, bool) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || k == "" {
		return "", "", false
	}
	return k, v, true
}
