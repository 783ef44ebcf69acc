package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	cmdTimeout     = 120 * time.Second
	maxOutputBytes = 2 << 20
)

type CommandAction struct {
	Command string `json:"command"`
}

type CommandExecError struct {
	ExitCode int
	Output   string
}

func (e *CommandExecError) Error() string {
	return fmt.Sprintf("command failed with exit code %d: %s", e.ExitCode, strings.TrimSpace(e.Output))
}

// defaultAllowedCommands maps an executable to its permitted subcommands.
var defaultAllowedCommands = map[string]map[string]struct{}{
	"go":  {"test": {}, "fmt": {}, "vet": {}, "mod": {}, "version": {}},
	"git": {"status": {}, "diff": {}, "log": {}},
}

// commandRunner executes allowlisted commands with the workspace as cwd.
type commandRunner struct {
	sandbox *Sandbox
	allowed map[string]map[string]struct{}
	timeout time.Duration
}

func newCommandRunner(sandbox *Sandbox) *commandRunner {
	return &commandRunner{sandbox: sandbox, allowed: defaultAllowedCommands, timeout: cmdTimeout}
}

func (r *commandRunner) tools() []Tool {
	names := make([]string, 0, len(r.allowed))
	for exe := range r.allowed {
		names = append(names, exe)
	}
	sort.Strings(names)
	return []Tool{{
		Name:        run_command,
		Description: fmt.Sprintf(`Run an allowlisted command (%s) in the workspace. Parameters: {"command": string}`, strings.Join(names, ", ")),
		Parameters:  objectParams([]string{"command"}, map[string]any{"command": stringParam("Command line such as: go test ./...")}),
		Handler: HandlerFunc(func(ctx context.Context, p map[string]any) (any, error) {
			return withParsed[CommandAction](p, run_command, func(a CommandAction) (string, error) {
				return r.run(ctx, a.Command)
			})
		}),
	}}
}

func (r *commandRunner) run(ctx context.Context, cmdline string) (string, error) {
	cmdline = strings.TrimSpace(cmdline)
	if cmdline == "" {
		return "", errors.New("command is required")
	}
	if err := forbidShellMeta(cmdline); err != nil {
		return "", err
	}

	tokens := strings.Fields(cmdline)
	exe := tokens[0]
	var sub string
	if len(tokens) > 1 {
		sub = tokens[1]
	}

	subs, ok := r.allowed[exe]
	if !ok {
		return "", fmt.Errorf("command not allowed: %s", exe)
	}
	if _, ok = subs[sub]; !ok {
		return "", fmt.Errorf("subcommand not allowed: %s %s", exe, sub)
	}
	if _, err := exec.LookPath(exe); err != nil {
		return "", fmt.Errorf("%q not found in PATH", exe)
	}

	root, err := r.sandbox.Root()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, exe, tokens[1:]...)
	cmd.Dir = root
	cw := &cappedWriter{max: maxOutputBytes}
	cmd.Stdout = cw
	cmd.Stderr = cw

	waitErr := cmd.Run()
	out := cw.String()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("command timed out after %s", r.timeout)
	}
	if waitErr != nil {
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			return "", &CommandExecError{ExitCode: ee.ExitCode(), Output: out}
		}
		return "", waitErr
	}

	log.Info().Str("command", cmdline).Msg("✅ Command executed")
	if out == "" {
		return "Command completed with no output", nil
	}
	return out, nil
}

func forbidShellMeta(s string) error {
	if strings.ContainsAny(s, `"'`+"\n\r`$()<>|;&") {
		return errors.New("shell metacharacters are not allowed")
	}
	return nil
}

type cappedWriter struct {
	buf bytes.Buffer
	max int64
	n   int64
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	remain := w.max - w.n
	if remain <= 0 {
		return len(p), nil
	}
	if int64(len(p)) > remain {
		p = p[:remain]
	}
	n, _ := w.buf.Write(p)
	w.n += int64(n)
	return len(p), nil
}

func (w *cappedWriter) String() string {
	return w.buf.String()
}
