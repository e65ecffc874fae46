package corectx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	dataDir := t.TempDir()
	c, err := Open(EnvConfig{DataDir: dataDir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestOpen_RequiresDataDir(t *testing.T) {
	_, err := Open(EnvConfig{})
	assert.Error(t, err)
}

func TestProject_LazyLoadsOnce(t *testing.T) {
	c := newTestContext(t)
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\n\nfunc main() {}\n")

	proj, err := c.AddProject("demo", root)
	require.NoError(t, err)

	ps1, err := c.project(context.Background(), proj)
	require.NoError(t, err)
	ps2, err := c.project(context.Background(), proj)
	require.NoError(t, err)
	assert.Same(t, ps1, ps2)
}

func TestLoadProject_PersistsEmbedderMarker(t *testing.T) {
	c := newTestContext(t)
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\n")

	proj, err := c.AddProject("demo", root)
	require.NoError(t, err)

	_, err = c.CatchUp(context.Background(), proj.ID)
	require.NoError(t, err)

	markerPath := filepath.Join(c.projectDir(proj.ID), embedderMarkerFn)
	data, err := os.ReadFile(markerPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "local")
}

func TestCatchUp_PersistsAcrossReload(t *testing.T) {
	dataDir := t.TempDir()
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\n\nfunc main() {}\n")

	c1, err := Open(EnvConfig{DataDir: dataDir})
	require.NoError(t, err)
	proj, err := c1.AddProject("demo", root)
	require.NoError(t, err)
	result, err := c1.CatchUp(context.Background(), proj.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesAdded)
	require.NoError(t, c1.Close())

	c2, err := Open(EnvConfig{DataDir: dataDir})
	require.NoError(t, err)
	defer func() { _ = c2.Close() }()

	status, err := c2.IndexStatus(context.Background(), proj.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.FilesIndexed)
	assert.Greater(t, status.VectorsIndexed, 0)
}

func TestDropProject_ClosesStores(t *testing.T) {
	c := newTestContext(t)
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\n")

	proj, err := c.AddProject("demo", root)
	require.NoError(t, err)
	_, err = c.project(context.Background(), proj)
	require.NoError(t, err)

	require.NoError(t, c.RemoveProject(proj.ID))

	c.mu.Lock()
	_, loaded := c.projects[proj.ID]
	c.mu.Unlock()
	assert.False(t, loaded)
}
