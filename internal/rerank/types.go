// Package rerank implements the cross-encoder reranking stage (C12): it
// reorders a fused candidate list by query-document relevance, skipping
// reranking when the candidate list is too small or dominated, and failing
// open (passing the input through untouched) on timeout or upstream error.
package rerank

// Candidate is one rerankable item: its content and its pre-rerank fused
// score, kept so fail-open can fall back to the original ordering.
type Candidate struct {
	DocID   string
	Content string
	Score   float64
}

// Result is one reranked candidate.
type Result struct {
	Candidate
	RerankScore float64
	Reranked    bool // false when the skip/fail-open path was taken
}

// SkipReason names why reranking was bypassed, for observability.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipEmpty            SkipReason = "empty"
	SkipTooFew           SkipReason = "too_few_results"
	SkipShortQuery       SkipReason = "short_query"
	SkipTopDominant      SkipReason = "top_dominant"
	SkipTimeout          SkipReason = "timeout"
	SkipUpstreamError    SkipReason = "upstream_error"
)

// Options tunes the skip heuristics and timeout.
type Options struct {
	MinResults      int     // skip if len(candidates) <= this, default 2
	MinQueryLength  int     // skip if len(query) < this, default 3
	DominanceMargin float64 // skip if top score exceeds 2nd by more than this multiple, default 3.0
	TopK            int     // 0 = rerank all
}

// DefaultOptions returns the spec's default tuning.
func DefaultOptions() Options {
	return Options{
		MinResults:      2,
		MinQueryLength:  3,
		DominanceMargin: 3.0,
	}
}

// Stats accumulates observability counters across calls to a Reranker.
type Stats struct {
	Attempted int64
	Skipped   int64
	FailedOpen int64
	SkipCounts map[SkipReason]int64
}
