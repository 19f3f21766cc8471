package rerank

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hybridsearch/engine/internal/inference"
)

// DefaultTimeout is the hard cap on a rerank call; the spec requires this
// to fail open rather than block the query path.
const DefaultTimeout = 100 * time.Millisecond

// Reranker wraps an inference client with the skip heuristics, timeout,
// and fail-open behavior the query path needs.
type Reranker struct {
	client  *inference.Client
	timeout time.Duration
	opts    Options

	mu         sync.Mutex
	attempted  int64
	skipped    int64
	failedOpen int64
	skipCounts map[SkipReason]int64
}

// New creates a Reranker. A zero timeout defaults to DefaultTimeout.
func New(client *inference.Client, timeout time.Duration, opts Options) *Reranker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if opts.MinResults <= 0 {
		opts.MinResults = DefaultOptions().MinResults
	}
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = DefaultOptions().MinQueryLength
	}
	if opts.DominanceMargin <= 0 {
		opts.DominanceMargin = DefaultOptions().DominanceMargin
	}
	return &Reranker{
		client:     client,
		timeout:    timeout,
		opts:       opts,
		skipCounts: make(map[SkipReason]int64),
	}
}

// Rerank reorders candidates by cross-encoder relevance. It never returns
// an error: on a skip condition or an upstream failure it returns the
// input candidates in their original order with Reranked=false.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate) []Result {
	if reason := r.shouldSkip(query, candidates); reason != SkipNone {
		r.recordSkip(reason)
		return passthrough(candidates)
	}

	atomic.AddInt64(&r.attempted, 1)

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Content
	}

	topK := r.opts.TopK
	if topK <= 0 {
		topK = len(docs)
	}

	scored, err := r.client.Rerank(cctx, query, docs, topK)
	if err != nil || len(scored) == 0 {
		atomic.AddInt64(&r.failedOpen, 1)
		return passthrough(candidates)
	}

	matched := make([]bool, len(candidates))
	out := make([]Result, 0, len(candidates))
	for _, s := range scored {
		if s.Index < 0 || s.Index >= len(candidates) {
			continue
		}
		matched[s.Index] = true
		out = append(out, Result{
			Candidate:   candidates[s.Index],
			RerankScore: s.Score,
			Reranked:    true,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RerankScore > out[j].RerankScore })

	// Candidates beyond TopK never reached the cross-encoder; append them as
	// the non-reranked tail, keeping their prior score, per spec §4.12.
	for i, c := range candidates {
		if matched[i] {
			continue
		}
		out = append(out, Result{Candidate: c, RerankScore: c.Score, Reranked: false})
	}
	return out
}

// shouldSkip applies the skip heuristics in spec order: empty, too few
// results, short query, then top-dominant.
func (r *Reranker) shouldSkip(query string, candidates []Candidate) SkipReason {
	if len(candidates) == 0 {
		return SkipEmpty
	}
	if len(candidates) <= r.opts.MinResults {
		return SkipTooFew
	}
	if len(query) < r.opts.MinQueryLength {
		return SkipShortQuery
	}
	if topDominant(candidates, r.opts.DominanceMargin) {
		return SkipTopDominant
	}
	return SkipNone
}

// topDominant reports whether the top-scoring candidate's score exceeds the
// second's by more than margin times over (spec §4.12: results[0] >
// margin*results[1]), implying reranking is unlikely to change the outcome.
func topDominant(candidates []Candidate, margin float64) bool {
	best, second := candidates[0].Score, -1.0
	for _, c := range candidates[1:] {
		if c.Score > best {
			second = best
			best = c.Score
		} else if c.Score > second {
			second = c.Score
		}
	}
	if second <= 0 || best <= 0 {
		return false
	}
	return best > margin*second
}

func passthrough(candidates []Candidate) []Result {
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{Candidate: c, RerankScore: c.Score, Reranked: false}
	}
	return out
}

func (r *Reranker) recordSkip(reason SkipReason) {
	atomic.AddInt64(&r.skipped, 1)
	r.mu.Lock()
	r.skipCounts[reason]++
	r.mu.Unlock()
}

// Stats returns a snapshot of the observability counters.
func (r *Reranker) Stats() Stats {
	r.mu.Lock()
	counts := make(map[SkipReason]int64, len(r.skipCounts))
	for k, v := range r.skipCounts {
		counts[k] = v
	}
	r.mu.Unlock()
	return Stats{
		Attempted:  atomic.LoadInt64(&r.attempted),
		Skipped:    atomic.LoadInt64(&r.skipped),
		FailedOpen: atomic.LoadInt64(&r.failedOpen),
		SkipCounts: counts,
	}
}
