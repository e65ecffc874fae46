package symbols

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSample = `package sample

// Greet says hello to name.
func Greet(name string) string {
	greeting := "hello " + name
	return greeting
}

type Greeter struct {
	Prefix string
}

func (g *Greeter) Greet(name string) string {
	return g.Prefix + Greet(name)
}
`

func TestIndex_RefreshFileExtractsGoSymbolsPrecisely(t *testing.T) {
	idx := New()
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.RefreshFile(context.Background(), "sample.go", []byte(goSample)))
	syms, err := idx.Symbols("sample.go")
	require.NoError(t, err)

	var kinds []Kind
	for _, s := range syms {
		kinds = append(kinds, s.Kind)
	}
	assert.Contains(t, kinds, KindFunction)
	assert.Contains(t, kinds, KindMethod)
	assert.Contains(t, kinds, KindType)
}

func TestIndex_UnsupportedExtensionIsNotTracked(t *testing.T) {
	idx := New()
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.RefreshFile(context.Background(), "data.bin", []byte("binary")))
	_, err := idx.Symbols("data.bin")
	assert.Error(t, err)
}

func TestIndex_FindDefinitionAcrossFiles(t *testing.T) {
	idx := New()
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.RefreshFile(context.Background(), "a.go", []byte(goSample)))
	require.NoError(t, idx.RefreshFile(context.Background(), "b.go", []byte("package b\nfunc Greet() {}\n")))

	locs := idx.FindDefinition("Greet", KindFunction)
	paths := make(map[string]bool)
	for _, l := range locs {
		paths[l.Path] = true
	}
	assert.True(t, paths["a.go"])
	assert.True(t, paths["b.go"])
}

func TestIndex_FindDefinitionFiltersByKind(t *testing.T) {
	idx := New()
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.RefreshFile(context.Background(), "sample.go", []byte(goSample)))

	funcs := idx.FindDefinition("Greet", KindFunction)
	methods := idx.FindDefinition("Greet", KindMethod)
	assert.Len(t, funcs, 1)
	assert.Len(t, methods, 1)
}

func TestIndex_FindReferencesExcludesCommentsAndStrings(t *testing.T) {
	idx := New()
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.RefreshFile(context.Background(), "sample.go", []byte(goSample)))

	refs := idx.FindReferences("Greet")
	lines := make(map[int]bool)
	for _, r := range refs {
		assert.Equal(t, "sample.go", r.Path)
		lines[r.StartLine] = true
	}
	// Line 3 is "// Greet says hello to name." — a comment, must be excluded.
	assert.False(t, lines[3], "a mention inside a comment must not count as a reference")
	// Line 14 is "return g.Prefix + Greet(name)" — a real call site.
	assert.True(t, lines[14])
}

func TestIndex_RemoveFileDropsTrackedData(t *testing.T) {
	idx := New()
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.RefreshFile(context.Background(), "sample.go", []byte(goSample)))
	idx.RemoveFile("sample.go")

	_, err := idx.Symbols("sample.go")
	assert.Error(t, err)
	assert.Empty(t, idx.FindDefinition("Greet", ""))
}

func TestIndex_SaveLoadRoundTripsSymbolsButNotReferences(t *testing.T) {
	idx := New()
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.RefreshFile(context.Background(), "sample.go", []byte(goSample)))

	dbPath := filepath.Join(t.TempDir(), "symbols.db")
	require.NoError(t, idx.Save(dbPath))

	idx2 := New()
	defer func() { _ = idx2.Close() }()
	require.NoError(t, idx2.Load(dbPath))

	defs := idx2.FindDefinition("Greet", KindFunction)
	assert.Len(t, defs, 1)

	// Trees are not persisted; reference search is inert until a later
	// RefreshFile re-parses the file.
	assert.Empty(t, idx2.FindReferences("Greet"))
}

func TestIndex_JSArrowFunctionIsExtracted(t *testing.T) {
	idx := New()
	defer func() { _ = idx.Close() }()

	src := `const handler = (req, res) => {
  return res.send("ok")
}
`
	require.NoError(t, idx.RefreshFile(context.Background(), "handler.js", []byte(src)))
	syms, err := idx.Symbols("handler.js")
	require.NoError(t, err)

	require.Len(t, syms, 1)
	assert.Equal(t, "handler", syms[0].Name)
	assert.Equal(t, KindFunction, syms[0].Kind)
}
