package symbols

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ragerrors "github.com/ragline/ragline/internal/errors"
)

// fileEntry holds everything needed to answer Symbols/FindDefinition
// immediately, plus (only while the process holding it is still running)
// the parsed Tree needed for FindReferences.
type fileEntry struct {
	language string
	symbols  []Symbol
	tree     *Tree // nil once reloaded from disk without a re-parse
}

// Index is the per-project SymbolIndex: one parser, one extractor, and
// an in-memory map of path -> extracted symbols (plus parsed trees for
// the lifetime of the process that built them).
type Index struct {
	mu       sync.RWMutex
	registry *LanguageRegistry
	parser   *Parser
	extractor *Extractor
	files    map[string]*fileEntry
}

// New constructs an empty Index.
func New() *Index {
	registry := DefaultRegistry()
	return &Index{
		registry:  registry,
		parser:    NewParser(),
		extractor: NewExtractor(),
		files:     make(map[string]*fileEntry),
	}
}

// LanguageFor reports the language registered for path's extension, and
// whether symbol extraction is supported for it at all.
func (idx *Index) LanguageFor(path string) (string, bool) {
	config, ok := idx.registry.GetByExtension(filepath.Ext(path))
	if !ok {
		return "", false
	}
	return config.Name, true
}

// RefreshFile parses content as path's language and re-extracts its
// symbols, replacing whatever was previously stored for path. An
// unrecognized extension is not an error: the file is simply not
// tracked by the symbol index (spec 4.12 treats this the same as any
// other per-file parse failure — keyword/vector indexing is unaffected).
func (idx *Index) RefreshFile(ctx context.Context, path string, content []byte) error {
	language, ok := idx.LanguageFor(path)
	if !ok {
		return nil
	}

	tree, err := idx.parser.Parse(ctx, content, language)
	if err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	syms := idx.extractor.Extract(tree)

	idx.mu.Lock()
	idx.files[path] = &fileEntry{language: language, symbols: syms, tree: tree}
	idx.mu.Unlock()
	return nil
}

// RemoveFile drops path's cached symbols and tree, e.g. after a file
// delete or rename.
func (idx *Index) RemoveFile(path string) {
	idx.mu.Lock()
	delete(idx.files, path)
	idx.mu.Unlock()
}

// Symbols returns every named definition found in path.
func (idx *Index) Symbols(path string) ([]Symbol, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fe, ok := idx.files[path]
	if !ok {
		return nil, ragerrors.NotFound("no symbols tracked for "+path, nil)
	}
	out := make([]Symbol, len(fe.symbols))
	copy(out, fe.symbols)
	return out, nil
}

// FindDefinition searches every tracked file for a definition named
// name, optionally restricted to kind.
func (idx *Index) FindDefinition(name string, kind Kind) []Location {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Location
	for path, fe := range idx.files {
		for _, s := range fe.symbols {
			if s.Name != name {
				continue
			}
			if kind != "" && s.Kind != kind {
				continue
			}
			out = append(out, Location{Path: path, StartLine: s.StartLine, EndLine: s.EndLine})
		}
	}
	return out
}

// FindReferences searches every tracked file's parsed tree for
// identifier nodes matching name, excluding comments and string
// literals. Files whose tree is no longer resident (reloaded from disk
// after a restart, not yet re-parsed by a later catch-up) are skipped —
// they reappear once the next catch-up touches them.
func (idx *Index) FindReferences(name string) []Location {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Location
	for path, fe := range idx.files {
		if fe.tree == nil {
			continue
		}
		config, ok := idx.registry.GetByName(fe.language)
		if !ok {
			continue
		}
		for _, loc := range findReferences(fe.tree, config, name) {
			loc.Path = path
			out = append(out, loc)
		}
	}
	return out
}

// persistedSymbol is symbols.db's line-delimited JSON record shape.
type persistedSymbol struct {
	Path       string `json:"path"`
	Language   string `json:"language"`
	Name       string `json:"name"`
	Kind       Kind   `json:"kind"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Signature  string `json:"signature"`
	DocComment string `json:"doc_comment"`
}

// Save persists every tracked file's extracted symbols (not their parsed
// trees — see FindReferences's restart note) to path, atomically.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	records := make([]persistedSymbol, 0, len(idx.files))
	for p, fe := range idx.files {
		for _, s := range fe.symbols {
			records = append(records, persistedSymbol{
				Path: p, Language: fe.language, Name: s.Name, Kind: s.Kind,
				StartLine: s.StartLine, EndLine: s.EndLine,
				Signature: s.Signature, DocComment: s.DocComment,
			})
		}
	}
	idx.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = tmp.Close()
			return ragerrors.Wrap(ragerrors.KindFatal, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if err := tmp.Close(); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	return nil
}

// Load restores Symbols/FindDefinition results from a prior Save.
// FindReferences is inert for these files until RefreshFile re-parses
// them, since trees are not persisted.
func (idx *Index) Load(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return ragerrors.Wrap(ragerrors.KindTransient, err)
	}
	defer func() { _ = f.Close() }()

	byPath := make(map[string]*fileEntry)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec persistedSymbol
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return ragerrors.Corrupt("symbols.db record is not valid JSON", err)
		}
		fe, ok := byPath[rec.Path]
		if !ok {
			fe = &fileEntry{language: rec.Language}
			byPath[rec.Path] = fe
		}
		fe.symbols = append(fe.symbols, Symbol{
			Name: rec.Name, Kind: rec.Kind, StartLine: rec.StartLine, EndLine: rec.EndLine,
			Signature: rec.Signature, DocComment: rec.DocComment,
		})
	}
	if err := scanner.Err(); err != nil {
		return ragerrors.Corrupt("failed reading symbols.db", err)
	}

	idx.mu.Lock()
	idx.files = byPath
	idx.mu.Unlock()
	return nil
}

// Close releases the underlying tree-sitter parser.
func (idx *Index) Close() error {
	idx.parser.Close()
	return nil
}
