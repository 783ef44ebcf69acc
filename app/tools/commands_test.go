package tools

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommandRejects(t *testing.T) {
	r := newCommandRunner(NewSandbox(t.TempDir()))

	cases := map[string]string{
		"":                       "command is required",
		"go test ./... && rm -f": "shell metacharacters",
		"rm -rf /":               "command not allowed: rm",
		"go run main.go":         "subcommand not allowed: go run",
		"git push":               "subcommand not allowed: git push",
		"go test $(whoami)":      "shell metacharacters",
	}
	for cmdline, want := range cases {
		_, err := r.run(context.Background(), cmdline)
		require.Error(t, err, cmdline)
		assert.Contains(t, err.Error(), want, cmdline)
	}
}

func TestRunCommandThroughRegistry(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go not in PATH")
	}
	tools, err := Preset(PresetCommands, NewSandbox(t.TempDir()))
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Contains(t, tools[0].Description, "git, go")

	r := NewRegistry()
	r.RegisterAll(tools)

	out := r.Invoke(context.Background(), run_command, map[string]any{"command": "go version"})
	assert.True(t, strings.HasPrefix(out.(string), "go version"), out)

	out = r.Invoke(context.Background(), run_command, map[string]any{"command": "go vet ./nothing-here"})
	assert.True(t, strings.HasPrefix(out.(string), "Error executing tool: command failed with exit code"), out)
}

func TestCappedWriter(t *testing.T) {
	w := &cappedWriter{max: 5}
	n, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, _ = w.Write([]byte("defgh"))
	assert.Equal(t, 5, n)
	_, _ = w.Write([]byte("ijk"))
	assert.Equal(t, "abcde", w.String())
}
