// Package retrieve implements the retriever coordinator (C10): it fans a
// query out to the lexical index (C3) and the vector store (C4) in
// parallel, tolerating a missing collection on either leg (any other leg
// failure is returned as an error), and returns whatever candidates came
// back for fusion (C11).
package retrieve

import (
	"github.com/hybridsearch/engine/internal/lexical"
	"github.com/hybridsearch/engine/internal/vectorstore"
)

// Defaults per the spec's per-modality candidate counts.
const (
	DefaultLexicalTopK = 200
	DefaultDenseTopK   = 80
)

// Options configures one retrieval fan-out.
type Options struct {
	LexicalTopK int
	DenseTopK   int
	UseHybrid   bool // when true, search the hybrid (dense+sparse) collection instead of dense-only
	Filter      vectorstore.Filter
	LexicalOpts lexical.SearchOptions
}

func (o Options) withDefaults() Options {
	if o.LexicalTopK <= 0 {
		o.LexicalTopK = DefaultLexicalTopK
	}
	if o.DenseTopK <= 0 {
		o.DenseTopK = DefaultDenseTopK
	}
	return o
}

// Candidates holds what each modality returned for one query. Either slice
// may be empty if that leg's collection didn't exist or returned nothing;
// a leg whose adapter reported NotFound keeps that error in its Err field
// while the other leg's results are still returned (a tolerated partial
// failure).
type Candidates struct {
	Lexical []lexical.SearchHit
	Vector  []vectorstore.SearchHit

	LexicalErr error
	VectorErr  error
}
