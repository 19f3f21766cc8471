// Package postrank implements the final presentation pass (C13): optional
// dedup of multiple chunks from the same file, and conversion of a raw
// fused/reranked score into a bounded display percentage.
package postrank

import (
	"math"
	"sort"

	"github.com/hybridsearch/engine/internal/fusion"
)

// DisplayResult is one result ready for presentation.
type DisplayResult struct {
	fusion.Result
	DisplayPercent int
}

// Options tunes the post-rank pass.
type Options struct {
	DedupByPath bool
}

// Apply dedups (if requested), replaces each result's score with its final
// (possibly rerank-updated) value, attaches a display percentage, and
// re-sorts descending by that final score, tie-broken by ascending doc_id —
// rawScores may no longer match the fused order once reranking has replaced
// a subset of them.
func Apply(results []fusion.Result, rawScores []float64, opts Options) []DisplayResult {
	if opts.DedupByPath {
		results, rawScores = dedupByPath(results, rawScores)
	}

	out := make([]DisplayResult, len(results))
	for i, r := range results {
		r.RRFScore = rawScores[i]
		out[i] = DisplayResult{
			Result:         r,
			DisplayPercent: DisplayPercent(rawScores[i]),
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}

// dedupByPath keeps only the first (highest-ranked) result per file path.
func dedupByPath(results []fusion.Result, rawScores []float64) ([]fusion.Result, []float64) {
	seen := make(map[string]bool, len(results))
	outR := make([]fusion.Result, 0, len(results))
	outS := make([]float64, 0, len(rawScores))
	for i, r := range results {
		if seen[r.Path] {
			continue
		}
		seen[r.Path] = true
		outR = append(outR, r)
		outS = append(outS, rawScores[i])
	}
	return outR, outS
}

// sigmoid maps a raw score to (0, 1).
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// DisplayPercent converts a raw relevance score into a bounded [12, 98]
// display percentage, scaling the sigmoid into a band that avoids showing
// either a misleadingly low or a falsely perfect match. 100 is only ever
// shown for an exceptionally strong raw score (>6), never reachable purely
// through the sigmoid's asymptote.
func DisplayPercent(rawScore float64) int {
	pct := (sigmoid(rawScore)*0.86 + 0.12) * 100
	rounded := int(math.Round(pct))

	if rawScore > 6 {
		return 100
	}
	if rounded < 12 {
		return 12
	}
	if rounded > 98 {
		return 98
	}
	return rounded
}
