package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/corectx"
)

// Integration tests for the full index-then-search flow through the
// retrieval core, exercising corectx.Context end to end rather than any
// single subsystem in isolation.

func newTestCore(t *testing.T) *corectx.Context {
	t.Helper()
	dataDir := t.TempDir()
	c, err := corectx.Open(corectx.EnvConfig{DataDir: dataDir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// createTestProject creates a simple test project structure
func createTestProject(t *testing.T, dir string) {
	t.Helper()

	files := map[string]string{
		"main.go": `package main

import "net/http"

// handleRequest is the main HTTP handler function
func handleRequest(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Hello, World!"))
}

func main() {
	http.HandleFunc("/", handleRequest)
	http.ListenAndServe(":8080", nil)
}
`,
		"util.go": `package main

// formatMessage formats a message with a prefix
func formatMessage(msg string) string {
	return "[APP] " + msg
}

// validateInput checks if input is valid
func validateInput(input string) bool {
	return len(input) > 0
}
`,
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// createMultiLangProject creates a project with multiple languages
func createMultiLangProject(t *testing.T, dir string) {
	t.Helper()

	files := map[string]string{
		"main.go": `package main

func main() {
	println("Hello from Go")
}
`,
		"index.js": `// JavaScript function
function greet(name) {
	console.log("Hello, " + name);
}
`,
		"script.py": `# Python function
def greet(name):
	print(f"Hello, {name}")
`,
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// TestIntegration_IndexAndSearch_FindsResults tests the complete flow:
// create files -> catch-up index -> search -> get results.
func TestIntegration_IndexAndSearch_FindsResults(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a project with some source files
	projectDir := t.TempDir()
	createTestProject(t, projectDir)

	core := newTestCore(t)
	proj, err := core.AddProject("test-project", projectDir)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = core.CatchUp(ctx, proj.ID)
	require.NoError(t, err)

	// When: searching for known content
	res, err := core.RagSearch(ctx, corectx.SearchRequest{
		Selector: proj.ID,
		Query:    "HTTP handler function",
		K:        10,
	})

	// Then: results should be found
	require.NoError(t, err)
	assert.NotEmpty(t, res.Candidates, "Search should find results")

	foundHandler := false
	for _, c := range res.Candidates {
		if c.Path == "main.go" {
			foundHandler = true
			break
		}
	}
	assert.True(t, foundHandler, "Should find main.go with handler function")
}

// TestIntegration_SearchAfterRebuild_StaysConsistent tests that a full
// rebuild produces search results consistent with the original catch-up.
func TestIntegration_SearchAfterRebuild_StaysConsistent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	projectDir := t.TempDir()
	createTestProject(t, projectDir)

	core := newTestCore(t)
	proj, err := core.AddProject("test-project", projectDir)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = core.CatchUp(ctx, proj.ID)
	require.NoError(t, err)

	before, err := core.RagSearch(ctx, corectx.SearchRequest{Selector: proj.ID, Query: "formatMessage", K: 10})
	require.NoError(t, err)
	require.NotEmpty(t, before.Candidates)

	// When: rebuilding the index from scratch
	_, err = core.IndexRebuild(ctx, proj.ID, true)
	require.NoError(t, err)

	after, err := core.RagSearch(ctx, corectx.SearchRequest{Selector: proj.ID, Query: "formatMessage", K: 10})
	require.NoError(t, err)

	// Then: the same file is still found
	assert.NotEmpty(t, after.Candidates)
	assert.Equal(t, before.Candidates[0].Path, after.Candidates[0].Path)
}

// TestIntegration_EmptyIndex_ReturnsNoResults tests that an index with no
// catch-up pass returns empty results without error.
func TestIntegration_EmptyIndex_ReturnsNoResults(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	core := newTestCore(t)
	projectDir := t.TempDir()
	proj, err := core.AddProject("empty-project", projectDir)
	require.NoError(t, err)

	ctx := context.Background()
	res, err := core.RagSearch(ctx, corectx.SearchRequest{Selector: proj.ID, Query: "any query", K: 10})

	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

// TestIntegration_SearchMultiLangProject_IndexesEveryLanguage tests that
// catch-up indexes files across languages and that each is independently
// findable by a query specific to its content.
func TestIntegration_SearchMultiLangProject_IndexesEveryLanguage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	projectDir := t.TempDir()
	createMultiLangProject(t, projectDir)

	core := newTestCore(t)
	proj, err := core.AddProject("multi-lang", projectDir)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = core.CatchUp(ctx, proj.ID)
	require.NoError(t, err)

	res, err := core.RagSearch(ctx, corectx.SearchRequest{Selector: proj.ID, Query: "console.log greet", K: 10})
	require.NoError(t, err)

	foundJS := false
	for _, c := range res.Candidates {
		if filepath.Ext(c.Path) == ".js" {
			foundJS = true
		}
	}
	assert.True(t, foundJS, "Should find index.js among indexed languages")
}

// TestIntegration_ConcurrentSearches_NoRace tests that concurrent searches
// don't cause race conditions.
func TestIntegration_ConcurrentSearches_NoRace(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	projectDir := t.TempDir()
	createTestProject(t, projectDir)

	core := newTestCore(t)
	proj, err := core.AddProject("test-project", projectDir)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = core.CatchUp(ctx, proj.ID)
	require.NoError(t, err)

	done := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		go func(query string) {
			_, err := core.RagSearch(ctx, corectx.SearchRequest{Selector: proj.ID, Query: query, K: 5})
			assert.NoError(t, err)
			done <- true
		}("test query " + string(rune('a'+i%26)))
	}

	timeout := time.After(10 * time.Second)
	for i := 0; i < 20; i++ {
		select {
		case <-done:
		case <-timeout:
			t.Fatal("Concurrent searches timed out")
		}
	}
}

// =============================================================================
// Config Integration Tests
// =============================================================================

// TestIntegration_ConfigLoad_AppliesDefaults tests that config loading
// works end-to-end with defaults.
func TestIntegration_ConfigLoad_AppliesDefaults(t *testing.T) {
	// Given: a directory without config file
	tmpDir := t.TempDir()

	// When: loading config
	cfg, err := config.Load(tmpDir)

	// Then: defaults are applied (empty provider = auto-detect: MLX -> Ollama -> Static)
	require.NoError(t, err)
	assert.Equal(t, 0.65, cfg.Search.BM25Weight) // RCA-015: BM25 favored
	assert.Equal(t, 0.35, cfg.Search.SemanticWeight)
	assert.Equal(t, "", cfg.Embeddings.Provider) // Empty = auto-detect
}

// TestIntegration_ConfigLoad_WithFile_OverridesDefaults tests that
// config file values override defaults for the fields the file sets.
func TestIntegration_ConfigLoad_WithFile_OverridesDefaults(t *testing.T) {
	// Given: a directory with config file
	tmpDir := t.TempDir()
	configContent := `
version: 1
search:
  chunk_size: 2000
embeddings:
  provider: static
`
	err := os.WriteFile(filepath.Join(tmpDir, ".amanmcp.yaml"), []byte(configContent), 0644)
	require.NoError(t, err)

	// When: loading config
	cfg, err := config.Load(tmpDir)

	// Then: file values override defaults for the fields the file sets
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Search.ChunkSize)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	// Weights keep their defaults (the file does not set them)
	assert.Equal(t, 0.65, cfg.Search.BM25Weight)
	assert.Equal(t, 0.35, cfg.Search.SemanticWeight)
}
