package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCastAny(t *testing.T) {
	type params struct {
		Filename string `json:"filename"`
		Count    int    `json:"count"`
	}

	got, err := CastAny[params](map[string]any{"filename": "a.txt", "count": 3.0})
	require.NoError(t, err)
	assert.Equal(t, params{Filename: "a.txt", Count: 3}, *got)

	_, err = CastAny[params](map[string]any{"count": "three"})
	assert.Error(t, err)
}

func TestLoadFilesFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs", ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "b.md"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", ".hidden", "c.md"), []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("x"), 0o644))

	paths, err := LoadFilesFromDir(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "docs", "b.md"),
	}, paths)

	_, err = LoadFilesFromDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestBuildTreeSkipsVendor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vendor", "x"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "main.go"), []byte(""), 0o644))

	tree, err := BuildTree(dir, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, tree, "main.go")
	assert.NotContains(t, tree, "vendor")
}
