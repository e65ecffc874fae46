package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ragline/ragline/internal/embedder"
	"github.com/ragline/ragline/internal/vectorindex"
)

// entry is one cached value plus the timestamp it was stored at.
type entry[V any] struct {
	value    V
	storedAt time.Time
}

// projectCache holds one project's exact and semantic tiers.
type projectCache[V any] struct {
	mu       sync.Mutex
	exact    *lru.Cache[string, entry[V]]
	semantic vectorindex.Index // nil until the first successful embed
	dims     int
}

// Cache is the two-tier query cache, generic over the cached result
// type so callers don't need to type-assert an interface{}.
type Cache[V any] struct {
	mu       sync.Mutex
	projects map[string]*projectCache[V]
	cfg      Config
	embedder embedder.Embedder // nil disables the semantic tier entirely
}

// New constructs a Cache. A nil embedder is valid: every project's
// semantic tier stays inert and only the exact tier is consulted,
// matching spec §4.10's "if the project was created embedding-disabled,
// the semantic tier is inert for that project".
func New[V any](cfg Config, emb embedder.Embedder) *Cache[V] {
	if cfg.MaxEntriesPerProject <= 0 {
		cfg = DefaultConfig()
	}
	return &Cache[V]{projects: make(map[string]*projectCache[V]), cfg: cfg, embedder: emb}
}

func (c *Cache[V]) project(projectID string) *projectCache[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.projects[projectID]
	if !ok {
		pc = &projectCache[V]{}
		pc.exact, _ = lru.NewWithEvict[string, entry[V]](c.cfg.MaxEntriesPerProject, func(key string, _ entry[V]) {
			if pc.semantic != nil {
				_ = pc.semantic.Delete(context.Background(), []string{key})
			}
		})
		c.projects[projectID] = pc
	}
	return pc
}

// exactKey hashes the lowercased, trimmed query together with the
// project id and k, per spec §4.10 step 1.
func exactKey(projectID, query string, k int) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(projectID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(k)))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache[V]) expired(e entry[V]) bool {
	return c.cfg.TTL > 0 && time.Since(e.storedAt) > c.cfg.TTL
}

// Get looks up (projectID, query, k): exact tier first, then the
// semantic tier (embed query, nearest-neighbor search, cosine >= tau),
// writing the semantic hit through to the exact tier under the
// current key. Any failure along the semantic path (no embedder, embed
// error, empty index) is treated as a miss, never an error — the
// cache is advisory.
func (c *Cache[V]) Get(ctx context.Context, projectID, query string, k int) (V, bool) {
	var zero V
	pc := c.project(projectID)
	key := exactKey(projectID, query, k)

	pc.mu.Lock()
	if e, ok := pc.exact.Get(key); ok {
		if !c.expired(e) {
			pc.mu.Unlock()
			return e.value, true
		}
		pc.exact.Remove(key)
	}
	pc.mu.Unlock()

	if c.embedder == nil {
		return zero, false
	}

	qv, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return zero, false
	}

	pc.mu.Lock()
	semantic := pc.semantic
	pc.mu.Unlock()
	if semantic == nil {
		return zero, false
	}

	results, err := semantic.Search(ctx, qv, 1)
	if err != nil || len(results) == 0 {
		return zero, false
	}
	if float64(results[0].Score) < c.cfg.Tau {
		return zero, false
	}

	pc.mu.Lock()
	hit, ok := pc.exact.Get(results[0].ChunkID)
	if ok && !c.expired(hit) {
		pc.exact.Add(key, hit)
	}
	pc.mu.Unlock()
	if !ok || c.expired(hit) {
		return zero, false
	}
	return hit.value, true
}

// Put inserts value into both tiers under (projectID, query, k) with
// the current timestamp. The semantic tier's dimension is frozen to
// whatever the first successful embed returns for this project; a
// later embed of a different dimension (which should not happen,
// since a project's embedder is fixed) is simply skipped rather than
// corrupting the index.
func (c *Cache[V]) Put(ctx context.Context, projectID, query string, k int, value V) {
	pc := c.project(projectID)
	key := exactKey(projectID, query, k)

	pc.mu.Lock()
	pc.exact.Add(key, entry[V]{value: value, storedAt: time.Now()})
	pc.mu.Unlock()

	if c.embedder == nil {
		return
	}
	qv, err := c.embedder.Embed(ctx, query)
	if err != nil || len(qv) == 0 {
		return
	}

	pc.mu.Lock()
	if pc.semantic == nil {
		pc.dims = len(qv)
		pc.semantic = vectorindex.New(vectorindex.DefaultConfig(pc.dims))
	}
	semantic := pc.semantic
	dims := pc.dims
	pc.mu.Unlock()

	if len(qv) != dims {
		return
	}
	_ = semantic.Add(ctx, []string{key}, [][]float32{qv})
}

// Clear removes cached entries per scope. ClearThisProject drops one
// project's tiers entirely; ClearAll drops every project; ClearExpiredOnly
// sweeps every project removing only TTL-expired entries.
func (c *Cache[V]) Clear(scope ClearScope, projectID string) {
	switch scope {
	case ClearThisProject:
		c.mu.Lock()
		delete(c.projects, projectID)
		c.mu.Unlock()
	case ClearAll:
		c.mu.Lock()
		c.projects = make(map[string]*projectCache[V])
		c.mu.Unlock()
	case ClearExpiredOnly:
		c.mu.Lock()
		all := make([]*projectCache[V], 0, len(c.projects))
		for _, pc := range c.projects {
			all = append(all, pc)
		}
		c.mu.Unlock()
		for _, pc := range all {
			c.sweepExpired(pc)
		}
	}
}

// Len reports the current exact-tier entry count for projectID, for
// cache.status reporting. A project with no cache activity yet reports 0
// without allocating one.
func (c *Cache[V]) Len(projectID string) int {
	c.mu.Lock()
	pc, ok := c.projects[projectID]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.exact.Len()
}

func (c *Cache[V]) sweepExpired(pc *projectCache[V]) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, key := range pc.exact.Keys() {
		e, ok := pc.exact.Peek(key)
		if ok && c.expired(e) {
			pc.exact.Remove(key)
		}
	}
}
