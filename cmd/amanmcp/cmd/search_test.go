package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCmd_RequiresQuery(t *testing.T) {
	// Given: search command without a query argument
	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"search"})

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)

	// When: executing
	err := rootCmd.Execute()

	// Then: cobra rejects the missing positional argument
	require.Error(t, err)
}

func TestSearchCmd_NoResults_ShowsMessage(t *testing.T) {
	// Given: an empty project directory with nothing indexed yet
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "go.mod"), []byte("module example\n\ngo 1.21\n"), 0644))

	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	// When: searching for a term that cannot match anything
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "nonexistent_xyz_123", "--no-vector"})

	err := rootCmd.Execute()

	// Then: the empty-result message is shown rather than an error
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No results found")
}

func TestSearchCmd_LimitFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	limitFlag := searchCmd.Flags().Lookup("limit")
	assert.NotNil(t, limitFlag)
	assert.Equal(t, "10", limitFlag.DefValue)
}

func TestSearchCmd_FormatFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	formatFlag := searchCmd.Flags().Lookup("format")
	assert.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestSearchCmd_NoVectorFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	flag := searchCmd.Flags().Lookup("no-vector")
	assert.NotNil(t, flag, "should have --no-vector flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestSearchCmd_RerankFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	flag := searchCmd.Flags().Lookup("rerank")
	assert.NotNil(t, flag, "should have --rerank flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestGetSnippet_TruncatesAndTrimsTrailingBlankLines(t *testing.T) {
	content := "line one\nline two\nline three\nline four\n\n"

	snippet := getSnippet(content, 2)

	assert.Equal(t, []string{"line one", "line two"}, snippet)
}

func TestGetSnippet_ShorterThanLimit(t *testing.T) {
	snippet := getSnippet("only one line", 5)

	assert.Equal(t, []string{"only one line"}, snippet)
}
