package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hybridsearch/engine/internal/cache"
	"github.com/hybridsearch/engine/internal/model"
)

const existsCacheTTL = 5 * time.Minute

// Doc is one chunk to upsert into a collection.
type Doc struct {
	DocID     string
	Dense     []float32
	Sparse    SparseVector
	Content   string
	Symbols   []string
	Path      string
	Language  string
	ChunkID   string
	StartLine int
	EndLine   int
}

func (d Doc) metadata() Metadata {
	return Metadata{
		Path:      d.Path,
		Language:  d.Language,
		ChunkID:   d.ChunkID,
		StartLine: d.StartLine,
		EndLine:   d.EndLine,
	}
}

// Adapter owns the dense and hybrid collections for every store.
type Adapter struct {
	mu          sync.RWMutex
	dimensions  int
	dense       map[string]*collection
	hybrid      map[string]*collection
	existsCache *cache.Cache[string, bool]
}

// NewAdapter creates an adapter whose collections embed dimensions-wide
// dense vectors.
func NewAdapter(dimensions int) *Adapter {
	return &Adapter{
		dimensions:  dimensions,
		dense:       make(map[string]*collection),
		hybrid:      make(map[string]*collection),
		existsCache: cache.New[string, bool](1024, existsCacheTTL),
	}
}

// CreateCollection creates the dense (and, if hybrid is true, the hybrid)
// collection for store. Idempotent.
func (a *Adapter) CreateCollection(ctx context.Context, store string, hybrid bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg := DefaultConfig(a.dimensions)
	if _, ok := a.dense[store]; !ok {
		a.dense[store] = newCollection(KindDense, cfg)
	}
	if hybrid {
		if _, ok := a.hybrid[store]; !ok {
			a.hybrid[store] = newCollection(KindHybrid, cfg)
		}
	}
	a.existsCache.Set(store, true)
	return nil
}

// DropCollection removes both the dense and hybrid collections for store.
func (a *Adapter) DropCollection(ctx context.Context, store string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.dense, store)
	delete(a.hybrid, store)
	a.existsCache.Remove(store)
	return nil
}

// CollectionExists reports whether store has a collection, using a 5-minute
// TTL cache so repeated existence checks avoid lock contention.
func (a *Adapter) CollectionExists(ctx context.Context, store string) bool {
	if exists, ok := a.existsCache.Get(store); ok {
		return exists
	}

	a.mu.RLock()
	_, exists := a.dense[store]
	a.mu.RUnlock()

	a.existsCache.Set(store, exists)
	return exists
}

// Upsert deletes then re-inserts each doc in both the dense and (if present)
// hybrid collection for store.
func (a *Adapter) Upsert(ctx context.Context, store string, docs []Doc) error {
	a.mu.RLock()
	dense, denseOK := a.dense[store]
	hybrid, hybridOK := a.hybrid[store]
	a.mu.RUnlock()

	if !denseOK {
		return fmt.Errorf("vectorstore: collection for store %q does not exist", store)
	}

	denseDocs := make([]upsertDoc, len(docs))
	for i, d := range docs {
		denseDocs[i] = upsertDoc{DocID: d.DocID, Dense: d.Dense, Metadata: d.metadata()}
	}
	if err := dense.upsert(denseDocs); err != nil {
		return err
	}

	if hybridOK {
		hybridDocs := make([]upsertDoc, len(docs))
		for i, d := range docs {
			sparse := d.Sparse
			if sparse == nil {
				sparse = SparseFromContent(d.Content)
			}
			hybridDocs[i] = upsertDoc{
				DocID:    d.DocID,
				Dense:    d.Dense,
				Sparse:   sparse,
				Content:  d.Content,
				Symbols:  d.Symbols,
				Metadata: d.metadata(),
			}
		}
		if err := hybrid.upsert(hybridDocs); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByDocIDs removes docs by id from both collections for store.
func (a *Adapter) DeleteByDocIDs(ctx context.Context, store string, docIDs []string) error {
	a.mu.RLock()
	dense, denseOK := a.dense[store]
	hybrid, hybridOK := a.hybrid[store]
	a.mu.RUnlock()

	if denseOK {
		dense.deleteByDocIDs(docIDs)
	}
	if hybridOK {
		hybrid.deleteByDocIDs(docIDs)
	}
	return nil
}

// DeleteByPathPrefix removes every doc under prefix from both collections.
func (a *Adapter) DeleteByPathPrefix(ctx context.Context, store string, prefix string) error {
	a.mu.RLock()
	dense, denseOK := a.dense[store]
	hybrid, hybridOK := a.hybrid[store]
	a.mu.RUnlock()

	if denseOK {
		dense.deleteByPathPrefix(prefix)
	}
	if hybridOK {
		hybrid.deleteByPathPrefix(prefix)
	}
	return nil
}

// Search runs a dense-only nearest-neighbor search against store's dense
// collection. Returns empty with no error if the collection doesn't exist.
func (a *Adapter) Search(ctx context.Context, store string, query []float32, topK int, filter Filter) ([]SearchHit, error) {
	a.mu.RLock()
	dense, ok := a.dense[store]
	a.mu.RUnlock()
	if !ok {
		return []SearchHit{}, nil
	}
	return dense.search(ctx, query, topK, filter)
}

// HybridSearch runs a fused dense+sparse search against store's hybrid
// collection. Returns empty with no error if the collection doesn't exist.
func (a *Adapter) HybridSearch(ctx context.Context, store string, denseQuery []float32, sparseQuery SparseVector, topK int, filter Filter) ([]SearchHit, error) {
	a.mu.RLock()
	hybrid, ok := a.hybrid[store]
	a.mu.RUnlock()
	if !ok {
		return []SearchHit{}, nil
	}
	return hybrid.hybridSearch(ctx, denseQuery, sparseQuery, topK, filter)
}

// Stats reports per-store collection sizes.
type Stats struct {
	DenseCount  int
	HybridCount int
}

// Stats returns document counts for store's collections.
func (a *Adapter) Stats(ctx context.Context, store string) Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var s Stats
	if d, ok := a.dense[store]; ok {
		s.DenseCount = d.count()
	}
	if h, ok := a.hybrid[store]; ok {
		s.HybridCount = h.count()
	}
	return s
}

// DocFromChunk builds a Doc from a model.Chunk plus its dense embedding.
func DocFromChunk(chunk model.Chunk, dense []float32) Doc {
	return Doc{
		DocID:     chunk.DocID,
		Dense:     dense,
		Content:   chunk.Content,
		Symbols:   chunk.Symbols,
		Path:      chunk.Path,
		Language:  chunk.Language,
		ChunkID:   chunk.DocID,
		StartLine: chunk.StartLine,
		EndLine:   chunk.EndLine,
	}
}
