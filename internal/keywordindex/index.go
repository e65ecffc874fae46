package keywordindex

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"

	ragerrors "github.com/ragline/ragline/internal/errors"
)

const (
	tokenizerName = "ragline_tokenizer"
	analyzerName  = "ragline_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(tokenizerName, tokenizerConstructor)
}

// BleveIndex implements Index on top of bleve/v2, scored by BM25 with
// k1=1.2, b=0.75 (bleve's built-in similarity model) and no stopword
// filtering.
type BleveIndex struct {
	mu       sync.RWMutex
	index    bleve.Index
	path     string
	closed   bool
	byPath   map[string]map[string]struct{} // path -> set of chunk ids
}

type pathIndexMeta struct {
	ByPath map[string]map[string]struct{}
}

// New creates a BM25 index. An empty path creates an in-memory index.
func New(path string) (*BleveIndex, error) {
	indexMapping, err := buildMapping()
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, ragerrors.Wrap(ragerrors.KindFatal, err)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil {
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, ragerrors.Corrupt("keyword index is corrupt and could not be removed", removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	b := &BleveIndex{
		index:  idx,
		path:   path,
		byPath: make(map[string]map[string]struct{}),
	}
	if path != "" {
		_ = b.loadPathIndex(path + ".paths")
	}
	return b, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     tokenizerName,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	im.DefaultAnalyzer = analyzerName
	return im, nil
}

type bleveDoc struct {
	Content   string `json:"content"`
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (b *BleveIndex) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ragerrors.Fatal("keyword index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		bd := bleveDoc{Content: doc.Content, Path: doc.Path, StartLine: doc.StartLine, EndLine: doc.EndLine}
		if err := batch.Index(doc.ID, bd); err != nil {
			return ragerrors.Wrap(ragerrors.KindFatal, err)
		}
		if b.byPath[doc.Path] == nil {
			b.byPath[doc.Path] = make(map[string]struct{})
		}
		b.byPath[doc.Path][doc.ID] = struct{}{}
	}
	if err := b.index.Batch(batch); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	return nil
}

// Get fetches the stored content/path/line-range for chunkIDs by doc-id
// lookup (no scoring query involved). IDs with no stored document are
// silently omitted from the result.
func (b *BleveIndex) Get(ctx context.Context, chunkIDs []string) ([]Document, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ragerrors.Fatal("keyword index is closed", nil)
	}

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery(chunkIDs))
	req.Size = len(chunkIDs)
	req.Fields = []string{"content", "path", "start_line", "end_line"}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, ragerrors.Transient("keyword get failed", err)
	}

	out := make([]Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, Document{
			ID:        hit.ID,
			Path:      fieldString(hit.Fields["path"]),
			Content:   fieldString(hit.Fields["content"]),
			StartLine: fieldInt(hit.Fields["start_line"]),
			EndLine:   fieldInt(hit.Fields["end_line"]),
		})
	}
	return out, nil
}

func fieldString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func fieldInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func (b *BleveIndex) Search(ctx context.Context, queryStr string, limit int) ([]Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ragerrors.Fatal("keyword index is closed", nil)
	}
	if strings.TrimSpace(queryStr) == "" {
		return nil, nil
	}

	mq := bleve.NewMatchQuery(queryStr)
	mq.SetField("content")
	req := bleve.NewSearchRequest(mq)
	req.Size = limit
	req.IncludeLocations = true

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, ragerrors.Transient("keyword search failed", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, Result{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}

	// Ties broken by chunk-id ascending, per spec.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	return out, nil
}

func (b *BleveIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ragerrors.Fatal("keyword index is closed", nil)
	}

	batch := b.index.NewBatch()
	idSet := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		batch.Delete(id)
		idSet[id] = struct{}{}
	}
	if err := b.index.Batch(batch); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	for path, ids := range b.byPath {
		for id := range idSet {
			delete(ids, id)
		}
		if len(ids) == 0 {
			delete(b.byPath, path)
		}
	}
	return nil
}

// DeleteByPath removes every chunk previously indexed for a path, the
// bulk operation IncrementalIndexer uses on modify/delete before
// re-inserting a file's chunks.
func (b *BleveIndex) DeleteByPath(ctx context.Context, path string) error {
	b.mu.RLock()
	ids := make([]string, 0, len(b.byPath[path]))
	for id := range b.byPath[path] {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}
	return b.Delete(ctx, ids)
}

func (b *BleveIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ragerrors.Fatal("keyword index is closed", nil)
	}

	docCount, _ := b.index.DocCount()
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	res, err := b.index.Search(req)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.KindTransient, err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

func (b *BleveIndex) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return Stats{}
	}
	count, _ := b.index.DocCount()
	return Stats{DocumentCount: int(count)}
}

func (b *BleveIndex) Save(path string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.savePathIndex(path + ".paths")
}

func (b *BleveIndex) Load(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil && !b.closed {
		_ = b.index.Close()
	}
	idx, err := bleve.Open(path)
	if err != nil {
		return ragerrors.Corrupt("failed to open keyword index", err)
	}
	b.index = idx
	b.path = path
	b.closed = false
	return b.loadPathIndex(path + ".paths")
}

func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.path != "" {
		if err := b.savePathIndex(b.path + ".paths"); err != nil {
			return err
		}
	}
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

func (b *BleveIndex) savePathIndex(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if err := gob.NewEncoder(f).Encode(pathIndexMeta{ByPath: b.byPath}); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	return os.Rename(tmp, path)
}

func (b *BleveIndex) loadPathIndex(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var meta pathIndexMeta
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return ragerrors.Corrupt("keyword path index is corrupt", err)
	}
	if meta.ByPath != nil {
		b.byPath = meta.ByPath
	}
	return nil
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locs := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locs {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	return out
}

func tokenizerConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	return &blevetokenizer{}, nil
}

type blevetokenizer struct{}

func (t *blevetokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := Tokenize(text)

	out := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	lower := strings.ToLower(text)
	for _, tok := range tokens {
		start := strings.Index(lower[offset:], tok)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(tok)
		out = append(out, &analysis.Token{
			Term:     []byte(tok),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return out
}

var _ Index = (*BleveIndex)(nil)
