package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/nodectl/internal/logger"
)

// PortPlaceholder in Spec.Command is replaced with the configured port.
const PortPlaceholder = "{port}"

// Spec describes how to launch the node.
type Spec struct {
	Name          string        `json:"name"`
	Command       string        `json:"command"`        // command line; {port} is substituted
	Port          int           `json:"port"`           // port the node listens on
	WorkDir       string        `json:"work_dir"`       // optional working dir
	Env           []string      `json:"env"`            // extra KEY=VALUE entries
	StartDuration time.Duration `json:"start_duration"` // minimum time the node must stay up to be considered started
	Log           logger.Config `json:"log"`            // where the node's stdout/stderr go
}

// Validate checks the fields needed to launch.
func (s Spec) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return errors.New("process requires name")
	}
	if strings.ContainsAny(name, " \t\n\r/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("process %q: name must not contain whitespace, path separators or '..'", name)
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("process %q requires command", name)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("process %q: port %d out of range", name, s.Port)
	}
	if s.StartDuration < 0 {
		return fmt.Errorf("process %q: start_duration cannot be negative", name)
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec's command with the port
// applied. Every {port} is replaced; without a placeholder the port becomes the
// last argument, or $1 for shell scripts. It avoids invoking a shell when not
// necessary, and it also respects an explicit shell invocation already present
// in the command string (e.g., "sh -c 'echo hi'"), avoiding double-wrapping
// with another shell.
func (s Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return getTrueCommand()
	}
	port := strconv.Itoa(s.Port)
	substituted := strings.Contains(cmdStr, PortPlaceholder)
	cmdStr = strings.ReplaceAll(cmdStr, PortPlaceholder, port)

	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		return s.shellCommand(afterC, substituted, port)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return s.shellCommand(cmdStr, substituted, port)
	}
	parts := strings.Fields(cmdStr)
	if !substituted {
		parts = append(parts, port)
	}
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

func (s Spec) shellCommand(script string, substituted bool, port string) *exec.Cmd {
	if substituted {
		return getShellCommand(script)
	}
	return getShellCommand(script, s.Name, port)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			return strings.Fields(p)[0], unwrapQuoted(after), true
		}
	}
	return "", "", false
}

// unwrapQuoted strips one pair of quotes when they enclose all of s, so the
// shell parses the script itself. "'a' 'b'" is left alone.
func unwrapQuoted(s string) string {
	n := len(s)
	if n < 2 || (s[0] != '\'' && s[0] != '"') {
		return s
	}
	q := s[0]
	end := -1
	for i := 1; i < n; i++ {
		if q == '"' && s[i] == '\\' {
			i++
			continue
		}
		if s[i] == q {
			end = i
			break
		}
	}
	if end != n-1 {
		return s
	}
	return s[1 : n-1]
}
