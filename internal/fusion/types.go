// Package fusion combines lexical and vector search candidates into a
// single ranked list (C11): base Reciprocal Rank Fusion with confidence-
// weighted modality weights, a symbol-match boost, a path-match boost, an
// overlap bonus for documents found by both legs, and either a per-chunk or
// grouped-by-file result ordering.
package fusion

// Candidate is one leg's hit for a single doc_id, already decoupled from
// the lexical/vectorstore package types so fusion has no import-time
// dependency on either adapter.
type Candidate struct {
	DocID        string
	Path         string
	Language     string
	Content      string
	Symbols      []string
	StartLine    int
	EndLine      int
	MatchedTerms []string
}

// RankedCandidate pairs a Candidate with its 1-indexed rank in a single
// modality's result list (0 means absent from that list).
type RankedCandidate struct {
	Candidate
	LexicalRank int
	LexicalScore float64
	VectorRank   int
	VectorScore  float64
}

// Result is one fused, scored, ranked hit.
type Result struct {
	DocID       string
	Path        string
	Language    string
	Content     string
	Symbols     []string
	StartLine   int
	EndLine     int
	MatchedTerms []string

	RRFScore    float64
	LexicalRank int
	VectorRank  int
	InBothLists bool
}

// Weights are the per-modality RRF weights, w_s for lexical (sparse/BM25)
// and w_d for dense/vector.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights splits evenly between modalities.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.5, Vector: 0.5}
}

// Options tunes the fusion pass.
type Options struct {
	K                   int     // RRF smoothing constant, default 60
	SymbolBoostBase     float64 // default 1.5
	PathBoostMultiplier float64 // default 1.2
	OverlapBonus        float64 // multiplicative bonus for in-both-lists docs, default 0.1 (10%)
	GroupByFile         bool
	QueryTerms          []string // used for the symbol-match boost
	PathPattern         string   // non-empty when the query looks like a path fragment

	// ConfidenceWeighted enables the optional confidence-weighted fusion
	// mode: base weights shift toward whichever modality's top-10 scores
	// show a clearer gap, lower spread, and a fuller result list, then a
	// Jaccard top-20 overlap bonus scales both weights before renormalizing.
	ConfidenceWeighted bool
	MaxWeightBoost     float64 // bounds the confidence-driven weight shift, default 0.3
	MinWeight          float64 // floor on either modality's shifted weight, default 0.1
}

// DefaultOptions returns the spec's default tuning.
func DefaultOptions() Options {
	return Options{
		K:                   60,
		SymbolBoostBase:     1.5,
		PathBoostMultiplier: 1.2,
		OverlapBonus:        0.1,
		MaxWeightBoost:      0.3,
		MinWeight:           0.1,
	}
}
