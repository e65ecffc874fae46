package vectorindex

import (
	"bufio"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/coder/hnsw"

	ragerrors "github.com/ragline/ragline/internal/errors"
)

// HNSWIndex implements Index using coder/hnsw, a pure-Go HNSW graph.
// Deletes are lazy (tombstone-on-delete): the node stays in the graph but
// is unreachable through idMap/keyMap, and ShouldCompact signals when a
// rebuild is due.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	idMap   map[string]uint64
	keyMap  map[uint64]string
	vectors map[uint64][]float32 // retained for Compact's rebuild
	nextKey uint64

	closed bool
}

type persisted struct {
	IDMap   map[string]uint64
	Vectors map[uint64][]float32
	NextKey uint64
	Config  Config
}

// New creates an HNSW index for the given frozen dimension.
func New(cfg Config) *HNSWIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		vectors: make(map[uint64][]float32),
	}
}

func (s *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return ragerrors.Fatal("ids and vectors length mismatch", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ragerrors.Fatal("vector index is closed", nil)
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ragerrors.DimensionMismatch(
				"embedding dimension does not match the project's frozen dimension", nil).
				WithDetail("expected", strconv.Itoa(s.config.Dimensions)).
				WithDetail("got", strconv.Itoa(len(v)))
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.vectors, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
		s.vectors[key] = vec
	}
	return nil
}

func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ragerrors.Fatal("vector index is closed", nil)
	}
	if len(query) != s.config.Dimensions {
		return nil, ragerrors.DimensionMismatch("query embedding dimension mismatch", nil)
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	nodes := s.graph.Search(query, k)

	out := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // tombstoned
		}
		dist := s.graph.Distance(query, node.Value)
		out = append(out, Result{ChunkID: id, Score: 1 - dist/2})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	return out, nil
}

func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ragerrors.Fatal("vector index is closed", nil)
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.vectors, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

func (s *HNSWIndex) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

func (s *HNSWIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok
}

func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

func (s *HNSWIndex) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	valid := len(s.idMap)
	nodes := s.graph.Len()
	return Stats{ValidIDs: valid, GraphNodes: nodes, Orphans: nodes - valid}
}

// Compact rebuilds the graph from only the live vectors, dropping
// tombstoned nodes. Called when Stats().ShouldCompact() is true.
func (s *HNSWIndex) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ragerrors.Fatal("vector index is closed", nil)
	}

	fresh := hnsw.NewGraph[uint64]()
	fresh.Distance = hnsw.CosineDistance
	fresh.M = s.config.M
	fresh.EfSearch = s.config.EfSearch
	fresh.Ml = 0.25

	newKeyMap := make(map[uint64]string, len(s.idMap))
	newVectors := make(map[uint64][]float32, len(s.idMap))
	var nextKey uint64

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		oldKey := s.idMap[id]
		vec := s.vectors[oldKey]
		key := nextKey
		nextKey++
		fresh.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		newKeyMap[key] = id
		newVectors[key] = vec
	}

	s.graph = fresh
	s.keyMap = newKeyMap
	s.vectors = newVectors
	s.nextKey = nextKey

	return nil
}

func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ragerrors.Fatal("vector index is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	tmpGraph := path + ".tmp"
	f, err := os.Create(tmpGraph)
	if err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if err := s.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpGraph)
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpGraph)
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if err := os.Rename(tmpGraph, path); err != nil {
		_ = os.Remove(tmpGraph)
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	return s.saveMeta(path + ".meta")
}

func (s *HNSWIndex) saveMeta(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	meta := persisted{IDMap: s.idMap, Vectors: s.vectors, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
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

func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ragerrors.Fatal("vector index is closed", nil)
	}

	if err := s.loadMeta(path + ".meta"); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return ragerrors.Corrupt("failed to open vector index", err)
	}
	defer func() { _ = f.Close() }()

	reader := bufio.NewReader(f)
	if err := s.graph.Import(reader); err != nil {
		return ragerrors.Corrupt("failed to import vector graph", err)
	}
	return nil
}

func (s *HNSWIndex) loadMeta(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ragerrors.Wrap(ragerrors.KindTransient, err)
	}
	defer func() { _ = f.Close() }()

	var meta persisted
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return ragerrors.Corrupt("vector index metadata is corrupt", err)
	}

	s.idMap = meta.IDMap
	s.vectors = meta.Vectors
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ Index = (*HNSWIndex)(nil)
