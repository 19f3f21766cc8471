// Package vectorstore implements the dense and hybrid vector collection
// adapter (C4): one dense-only collection per store for cosine search over
// coder/hnsw, and an optional hybrid collection that additionally carries a
// sparse token vector, raw content, and symbols so a combined dense+sparse
// rank can be fused without a round trip to an external vector database.
package vectorstore

import "fmt"

// Metadata accompanies every vector in a collection.
type Metadata struct {
	Path      string
	Language  string
	ChunkID   string
	StartLine int
	EndLine   int
}

// SearchHit is one nearest-neighbor result.
type SearchHit struct {
	DocID    string
	Score    float32 // similarity, higher is better
	Metadata Metadata
}

// Config tunes the HNSW graph and search behavior.
type Config struct {
	Dimensions     int
	M              int // max connections per layer
	EfConstruction int // build-time search width (recorded; coder/hnsw does not expose a separate knob)
	EfSearch       int // query-time search width set on the graph; each search fetches EfSearchFor(topK) = max(64, 2*topK) candidates
}

// DefaultConfig returns the spec's defaults: M=16, efConstruction=200.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:     dimensions,
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
	}
}

// EfSearchFor returns the effective query-time search width for a request
// asking for topK results: max(64, 2*topK).
func EfSearchFor(topK int) int {
	ef := 2 * topK
	if ef < 64 {
		ef = 64
	}
	return ef
}

// ErrDimensionMismatch is returned when a vector's dimension doesn't match
// the collection's configured dimensionality. The collection's dimension is
// fixed at creation time; reindexing is required to change it.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Filter narrows a search to chunks whose path contains PathPrefix (when
// set) and whose language is in Languages (when non-empty).
type Filter struct {
	PathPrefix string
	Languages  []string
}

func (f Filter) matches(md Metadata) bool {
	if f.PathPrefix != "" && !contains(md.Path, f.PathPrefix) {
		return false
	}
	if len(f.Languages) > 0 {
		found := false
		for _, l := range f.Languages {
			if l == md.Language {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contains(s, substr string) bool {
	return len(substr) == 0 || indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}
