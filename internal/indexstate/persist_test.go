package indexstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsEmptyState(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "nope.jsonl"))

	require.NoError(t, err)
	assert.Empty(t, st.Files)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.jsonl")
	st := New()
	st.Put(FileRecord{Path: "a.go", ModTimeNanos: 100, Size: 10, ContentHash: "h1", ChunkCount: 1})
	st.Put(FileRecord{Path: "b.go", ModTimeNanos: 200, Size: 20, ContentHash: "h2", ChunkCount: 2})

	require.NoError(t, Save(path, st))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Files, 2)
	assert.Equal(t, st.Files["a.go"], loaded.Files["a.go"])
	assert.Equal(t, st.Files["b.go"], loaded.Files["b.go"])
}

func TestLoad_RejectsUnsupportedSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.jsonl")
	st := New()
	require.NoError(t, Save(path, st))

	// Corrupt the header line with a future schema version.
	writeRaw(t, path, `{"schema_version":99}`+"\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidHeaderJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.jsonl")
	writeRaw(t, path, "not json\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func writeRaw(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
