// Package inference implements the HTTP client for the external embedding
// and reranking service (C2): dense/sparse/combined embedding, cross-encoder
// reranking with a fail-open fallback, and a health check. The client holds
// no internal retry logic — the job queue (C7) is the retry authority for
// indexing-path failures, and search-path callers decide their own fallback.
package inference

import "time"

// EmbedMode selects which embedding representations to request.
type EmbedMode int

const (
	// EmbedDense requests only a dense vector per text.
	EmbedDense EmbedMode = iota
	// EmbedSparse requests only a sparse vector per text.
	EmbedSparse
	// EmbedBoth requests both dense and sparse vectors per text.
	EmbedBoth
)

// SparseVector mirrors internal/vectorstore's token-keyed sparse weight map.
type SparseVector map[string]float64

// EmbedResult holds the vectors produced for one input text.
type EmbedResult struct {
	Dense  []float32
	Sparse SparseVector
}

// RerankResult is one reranked document.
type RerankResult struct {
	// Index is the position of the document in the original input slice.
	Index int
	Score float64
}

// HealthStatus reports the inference service's reachability.
type HealthStatus struct {
	Healthy bool
	Message string
}

// embedRequest is the wire shape posted to the embeddings endpoint.
type embedRequest struct {
	Texts  []string `json:"texts"`
	Dense  bool     `json:"dense"`
	Sparse bool     `json:"sparse"`
}

// embedResponseItem is one entry of the embeddings response.
type embedResponseItem struct {
	Dense  []float32      `json:"dense,omitempty"`
	Sparse map[string]float64 `json:"sparse,omitempty"`
}

type embedResponse struct {
	Embeddings []embedResponseItem `json:"embeddings"`
}

// rerankRequest is the wire shape posted to the rerank endpoint.
type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k,omitempty"`
}

type rerankResponseItem struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type rerankResponse struct {
	Results []rerankResponseItem `json:"results"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// defaultTimeouts are overridden by config.InferenceConfig in production.
var defaultTimeouts = struct {
	embedIndex  time.Duration
	embedQuery  time.Duration
	rerank      time.Duration
	health      time.Duration
}{
	embedIndex: 300 * time.Second,
	embedQuery: 30 * time.Second,
	rerank:     100 * time.Millisecond,
	health:     5 * time.Second,
}
