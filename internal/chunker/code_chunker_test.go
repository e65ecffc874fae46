package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkCode_SingleSmallFile(t *testing.T) {
	content := "def login(u,p):\n    return check(u,p)\n"

	chunks, err := ChunkCode("a.py", []byte(content))

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
	assert.Equal(t, KindCode, chunks[0].Kind)
}

func TestChunkCode_EmptyContent(t *testing.T) {
	chunks, err := ChunkCode("empty.go", []byte(""))

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkCode_ExactlyOneWindow(t *testing.T) {
	lines := make([]string, CodeWindowLines)
	for i := range lines {
		lines[i] = "x"
	}
	content := strings.Join(lines, "\n")

	chunks, err := ChunkCode("f.go", []byte(content))

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, CodeWindowLines, chunks[0].EndLine)
}

func TestChunkCode_MultipleWindowsOverlap(t *testing.T) {
	total := 140
	lines := make([]string, total)
	for i := range lines {
		lines[i] = "line content"
	}
	content := strings.Join(lines, "\n")

	chunks, err := ChunkCode("f.go", []byte(content))
	require.NoError(t, err)

	// offsets: 0, 40, 80, 120 -> windows [1-50],[41-90],[81-130],[121-140]
	require.Len(t, chunks, 4)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 50, chunks[0].EndLine)
	assert.Equal(t, 41, chunks[1].StartLine)
	assert.Equal(t, 90, chunks[1].EndLine)
	assert.Equal(t, 81, chunks[2].StartLine)
	assert.Equal(t, 130, chunks[2].EndLine)
	assert.Equal(t, 121, chunks[3].StartLine)
	assert.Equal(t, 140, chunks[3].EndLine)

	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
	}
}

func TestChunkCode_OrdinalsContiguous(t *testing.T) {
	lines := make([]string, 500)
	for i := range lines {
		lines[i] = "content"
	}
	content := strings.Join(lines, "\n")

	chunks, err := ChunkCode("f.go", []byte(content))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
	}
}

func TestChunkCode_RejectsInvalidUTF8(t *testing.T) {
	invalid := []byte{0xff, 0xfe, 0xfd}

	chunks, err := ChunkCode("f.go", invalid)

	assert.Error(t, err)
	assert.Nil(t, chunks)
}

func TestChunkCode_WhitespaceOnlyFileProducesNoChunks(t *testing.T) {
	content := "   \n\n\t\n   "

	chunks, err := ChunkCode("f.go", []byte(content))

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkCode_AppendedFunctionUpdatesFileHash(t *testing.T) {
	// The chunker is a fixed-window function: appending lines to a file
	// that still fits in one window grows that window's text rather than
	// creating a new chunk. Incremental re-indexing detects the change via
	// IndexState's content hash, not via chunk count.
	before := "def login(u,p):\n    return check(u,p)\n"
	after := "def login(u,p):\n    return check(u,p)\ndef logout():\n    pass\n"

	beforeChunks, err := ChunkCode("a.py", []byte(before))
	require.NoError(t, err)
	afterChunks, err := ChunkCode("a.py", []byte(after))
	require.NoError(t, err)

	require.Len(t, beforeChunks, 1)
	require.Len(t, afterChunks, 1)
	assert.Equal(t, 1, afterChunks[0].StartLine)
	assert.Equal(t, 4, afterChunks[0].EndLine)
	assert.NotEqual(t, beforeChunks[0].Text, afterChunks[0].Text)
}
