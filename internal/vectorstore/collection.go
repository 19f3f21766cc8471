package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// Kind distinguishes the two collection shapes the spec defines.
type Kind int

const (
	KindDense Kind = iota
	KindHybrid
)

// DensePrefix and HybridPrefix name collections per store, matching the
// engine's collection-naming convention.
const (
	DensePrefix  = "P"
	HybridPrefix = "P_hybrid"
)

// DenseCollectionName returns the dense-only collection name for store.
func DenseCollectionName(store string) string { return DensePrefix + store }

// HybridCollectionName returns the hybrid collection name for store.
func HybridCollectionName(store string) string { return HybridPrefix + store }

// collection is a single HNSW-backed vector collection, optionally carrying
// sparse vectors, content, and symbols for hybrid search.
type collection struct {
	mu     sync.RWMutex
	kind   Kind
	config Config
	graph  *hnsw.Graph[uint64]

	idMap   map[string]uint64 // doc_id -> internal key
	keyMap  map[uint64]string // internal key -> doc_id
	nextKey uint64

	metadata map[string]Metadata
	sparse   map[string]SparseVector // hybrid only
	content  map[string]string       // hybrid only
	symbols  map[string][]string     // hybrid only
}

func newCollection(kind Kind, cfg Config) *collection {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	c := &collection{
		kind:     kind,
		config:   cfg,
		graph:    graph,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		metadata: make(map[string]Metadata),
	}
	if kind == KindHybrid {
		c.sparse = make(map[string]SparseVector)
		c.content = make(map[string]string)
		c.symbols = make(map[string][]string)
	}
	return c
}

// upsertDoc is one document to write into a collection.
type upsertDoc struct {
	DocID    string
	Dense    []float32
	Sparse   SparseVector // ignored for dense-only collections
	Content  string       // ignored for dense-only collections
	Symbols  []string     // ignored for dense-only collections
	Metadata Metadata
}

// upsert deletes then re-inserts each doc, per the spec's upsert semantics.
func (c *collection) upsert(docs []upsertDoc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range docs {
		if len(d.Dense) != c.config.Dimensions {
			return ErrDimensionMismatch{Expected: c.config.Dimensions, Got: len(d.Dense)}
		}
	}

	for _, d := range docs {
		if existingKey, exists := c.idMap[d.DocID]; exists {
			delete(c.keyMap, existingKey)
			delete(c.idMap, d.DocID)
		}

		key := c.nextKey
		c.nextKey++

		vec := make([]float32, len(d.Dense))
		copy(vec, d.Dense)
		normalizeInPlace(vec)

		c.graph.Add(hnsw.MakeNode(key, vec))
		c.idMap[d.DocID] = key
		c.keyMap[key] = d.DocID
		c.metadata[d.DocID] = d.Metadata

		if c.kind == KindHybrid {
			c.sparse[d.DocID] = d.Sparse
			c.content[d.DocID] = d.Content
			c.symbols[d.DocID] = d.Symbols
		}
	}
	return nil
}

// deleteByDocIDs removes documents by id (lazy delete: graph keeps the node,
// mappings are dropped so it no longer surfaces in results).
func (c *collection) deleteByDocIDs(docIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range docIDs {
		if key, ok := c.idMap[id]; ok {
			delete(c.keyMap, key)
			delete(c.idMap, id)
		}
		delete(c.metadata, id)
		if c.kind == KindHybrid {
			delete(c.sparse, id)
			delete(c.content, id)
			delete(c.symbols, id)
		}
	}
}

// deleteByPathPrefix removes every document whose path starts with prefix.
func (c *collection) deleteByPathPrefix(prefix string) []string {
	c.mu.Lock()
	var toDelete []string
	for id, md := range c.metadata {
		if hasPrefix(md.Path, prefix) {
			toDelete = append(toDelete, id)
		}
	}
	c.mu.Unlock()

	c.deleteByDocIDs(toDelete)
	return toDelete
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// search returns the topK nearest neighbors to query by cosine similarity,
// restricted to entries matching filter.
func (c *collection) search(ctx context.Context, query []float32, topK int, filter Filter) ([]SearchHit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(query) != c.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: c.config.Dimensions, Got: len(query)}
	}
	if c.graph.Len() == 0 {
		return []SearchHit{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	ef := EfSearchFor(topK)
	// coder/hnsw's Search returns up to `k` results; over-fetch with the
	// wider ef-equivalent breadth to leave room for filtering, then trim.
	fetch := ef
	if fetch < topK {
		fetch = topK
	}
	nodes := c.graph.Search(q, fetch)

	hits := make([]SearchHit, 0, topK)
	for _, node := range nodes {
		id, ok := c.keyMap[node.Key]
		if !ok {
			continue
		}
		md := c.metadata[id]
		if !filter.matches(md) {
			continue
		}

		distance := c.graph.Distance(q, node.Value)
		score := 1.0 - distance/2.0 // cosine distance in [0,2] -> score in [0,1]

		hits = append(hits, SearchHit{DocID: id, Score: score, Metadata: md})
		if len(hits) >= topK {
			break
		}
	}
	return hits, nil
}

// hybridSearch runs dense and sparse search independently, fuses them with
// RRF (k=60), and returns the combined top-K. This emulates the server-side
// RRF a real vector database would perform natively.
func (c *collection) hybridSearch(ctx context.Context, denseQuery []float32, sparseQuery SparseVector, topK int, filter Filter) ([]SearchHit, error) {
	const rrfK = 60.0

	denseHits, err := c.search(ctx, denseQuery, topK*3, filter)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	type scored struct {
		id    string
		score float64
	}
	var sparseHits []scored
	for id, vec := range c.sparse {
		md := c.metadata[id]
		if !filter.matches(md) {
			continue
		}
		s := DotProduct(sparseQuery, vec)
		if s > 0 {
			sparseHits = append(sparseHits, scored{id: id, score: s})
		}
	}
	c.mu.RUnlock()

	sortScoredDesc(sparseHits)
	if len(sparseHits) > topK*3 {
		sparseHits = sparseHits[:topK*3]
	}

	denseRank := make(map[string]int, len(denseHits))
	for i, h := range denseHits {
		denseRank[h.DocID] = i + 1
	}
	sparseRank := make(map[string]int, len(sparseHits))
	for i, h := range sparseHits {
		sparseRank[h.DocID] = i + 1
	}

	allIDs := make(map[string]struct{}, len(denseRank)+len(sparseRank))
	for id := range denseRank {
		allIDs[id] = struct{}{}
	}
	for id := range sparseRank {
		allIDs[id] = struct{}{}
	}

	fused := make([]scored, 0, len(allIDs))
	for id := range allIDs {
		var rrf float64
		if r, ok := denseRank[id]; ok {
			rrf += 1.0 / (rrfK + float64(r))
		}
		if r, ok := sparseRank[id]; ok {
			rrf += 1.0 / (rrfK + float64(r))
		}
		fused = append(fused, scored{id: id, score: rrf})
	}
	sortScoredDesc(fused)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SearchHit, 0, len(fused))
	for _, f := range fused {
		out = append(out, SearchHit{DocID: f.id, Score: float32(f.score), Metadata: c.metadata[f.id]})
	}
	return out, nil
}

func sortScoredDesc(items []struct {
	id    string
	score float64
}) {
	sort.Slice(items, func(i, j int) bool { return items[i].score > items[j].score })
}

func (c *collection) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.idMap)
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
