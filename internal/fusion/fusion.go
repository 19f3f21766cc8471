package fusion

import (
	"math"
	"sort"
	"strings"
)

// LexicalHit and VectorHit are the minimal per-modality inputs fusion
// needs: a rank-ordered slice of candidates plus their raw score.
type LexicalHit struct {
	Candidate
	Score float64
}

type VectorHit struct {
	Candidate
	Score float64
}

// Fuse combines lexical and vector hits (already ranked by each leg) into
// a single list ordered by fused RRF score, descending, tie-broken by
// ascending doc_id.
//
// rrf(d) = w_s/(k+r_s) + w_d/(k+r_d)
//
// missing-leg contribution uses missing_rank = max(len(lexical), len(vector)) + 1,
// the same convention the engine's prior single-vector-leg fusion used.
func Fuse(lexicalHits []LexicalHit, vectorHits []VectorHit, weights Weights, opts Options) []Result {
	if opts.K <= 0 {
		opts = DefaultOptions()
	}
	if len(lexicalHits) == 0 && len(vectorHits) == 0 {
		return []Result{}
	}

	scores := make(map[string]*Result, len(lexicalHits)+len(vectorHits))

	getOrCreate := func(c Candidate) *Result {
		if r, ok := scores[c.DocID]; ok {
			return r
		}
		r := &Result{
			DocID: c.DocID, Path: c.Path, Language: c.Language, Content: c.Content,
			Symbols: c.Symbols, StartLine: c.StartLine, EndLine: c.EndLine,
			MatchedTerms: c.MatchedTerms,
		}
		scores[c.DocID] = r
		return r
	}

	effective := weights
	if opts.ConfidenceWeighted {
		effective = confidenceWeights(lexicalHits, vectorHits, weights, opts.MaxWeightBoost, opts.MinWeight)
	}

	for rank, hit := range lexicalHits {
		r := getOrCreate(hit.Candidate)
		r.LexicalRank = rank + 1
		r.RRFScore += effective.Lexical / float64(opts.K+rank+1)
		if len(hit.MatchedTerms) > 0 {
			r.MatchedTerms = hit.MatchedTerms
		}
	}
	for rank, hit := range vectorHits {
		r := getOrCreate(hit.Candidate)
		r.VectorRank = rank + 1
		r.RRFScore += effective.Vector / float64(opts.K+rank+1)
		if r.LexicalRank > 0 {
			r.InBothLists = true
		}
	}

	missingRank := missingRank(len(lexicalHits), len(vectorHits))
	for _, r := range scores {
		if r.LexicalRank == 0 && r.VectorRank > 0 {
			r.RRFScore += effective.Lexical / float64(opts.K+missingRank)
		}
		if r.VectorRank == 0 && r.LexicalRank > 0 {
			r.RRFScore += effective.Vector / float64(opts.K+missingRank)
		}
	}

	for _, r := range scores {
		applyBoosts(r, opts)
	}

	results := toSortedSlice(scores)
	if opts.GroupByFile {
		results = groupByFile(results)
	}
	return results
}

// confidenceWeights shifts base toward whichever modality shows the more
// confident top-10 score distribution, then applies the Jaccard top-20
// overlap bonus, and renormalizes so the weights still sum to the same
// total as base.
func confidenceWeights(lexicalHits []LexicalHit, vectorHits []VectorHit, base Weights, maxBoost, minWeight float64) Weights {
	if maxBoost <= 0 {
		maxBoost = 0.3
	}
	if minWeight <= 0 {
		minWeight = 0.1
	}

	cs := modalityConfidence(lexicalScores(lexicalHits))
	cd := modalityConfidence(vectorScores(vectorHits))

	shifted := base
	if total := cs + cd; cs > 0 && cd > 0 && total > 0 {
		shifted = Weights{
			Lexical: shiftWeight(base.Lexical, cs/total, maxBoost, minWeight),
			Vector:  shiftWeight(base.Vector, cd/total, maxBoost, minWeight),
		}
	}

	overlap := jaccardTop20(lexicalHits, vectorHits)
	if overlap > 0.3 {
		scale := 1 + overlap*0.2
		shifted = Weights{Lexical: shifted.Lexical * scale, Vector: shifted.Vector * scale}
	}

	return normalizeWeights(shifted, base.Lexical+base.Vector)
}

// shiftWeight applies w' = w * (1 + (share-0.5)*maxBoost), bounded below by
// minWeight and above by w*(1+maxBoost) — the ceiling the deviation term
// can reach when one modality has all the confidence (share=1).
func shiftWeight(w, share, maxBoost, minWeight float64) float64 {
	w2 := w * (1 + (share-0.5)*maxBoost)
	if upper := w * (1 + maxBoost); w2 > upper {
		w2 = upper
	}
	if w2 < minWeight {
		w2 = minWeight
	}
	return w2
}

func normalizeWeights(w Weights, total float64) Weights {
	sum := w.Lexical + w.Vector
	if sum <= 0 {
		return DefaultWeights()
	}
	if total <= 0 {
		total = 1
	}
	return Weights{Lexical: w.Lexical / sum * total, Vector: w.Vector / sum * total}
}

// modalityConfidence combines normalized top-10 gap, inverse normalized
// spread, and list-size signals per spec §4.11:
// confidence = 0.5*gap + 0.3*(1-min(1,std/mean)) + 0.2*min(1,n/20).
func modalityConfidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	top10 := scores
	if len(top10) > 10 {
		top10 = top10[:10]
	}
	top := top10[0]
	if top <= 0 {
		return 0
	}
	second := 0.0
	if len(top10) > 1 {
		second = top10[1]
	}
	normalizedGap := (top - second) / top

	mean, std := meanStd(top10)
	stdTerm := 0.0
	if mean > 0 {
		stdTerm = std / mean
	}
	if stdTerm > 1 {
		stdTerm = 1
	}

	sizeTerm := float64(len(scores)) / 20
	if sizeTerm > 1 {
		sizeTerm = 1
	}

	return 0.5*normalizedGap + 0.3*(1-stdTerm) + 0.2*sizeTerm
}

func meanStd(scores []float64) (float64, float64) {
	n := float64(len(scores))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / n
	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / n)
}

func lexicalScores(hits []LexicalHit) []float64 {
	out := make([]float64, len(hits))
	for i, h := range hits {
		out[i] = h.Score
	}
	return out
}

func vectorScores(hits []VectorHit) []float64 {
	out := make([]float64, len(hits))
	for i, h := range hits {
		out[i] = h.Score
	}
	return out
}

// jaccardTop20 measures |top20_lexical ∩ top20_vector| / min(|top20_lexical|, |top20_vector|),
// the overlap signal the spec scales both weights by before fusion.
func jaccardTop20(lexicalHits []LexicalHit, vectorHits []VectorHit) float64 {
	const n = 20
	lex := make(map[string]bool, n)
	for i, h := range lexicalHits {
		if i >= n {
			break
		}
		lex[h.DocID] = true
	}
	vec := make(map[string]bool, n)
	for i, h := range vectorHits {
		if i >= n {
			break
		}
		vec[h.DocID] = true
	}
	if len(lex) == 0 || len(vec) == 0 {
		return 0
	}
	inter := 0
	for id := range vec {
		if lex[id] {
			inter++
		}
	}
	minLen := len(lex)
	if len(vec) < minLen {
		minLen = len(vec)
	}
	return float64(inter) / float64(minLen)
}

func missingRank(lexicalLen, vectorLen int) int {
	if lexicalLen > vectorLen {
		return lexicalLen + 1
	}
	return vectorLen + 1
}

// applyBoosts multiplies in the symbol-match, path-match, and overlap
// bonuses. Boosts compose multiplicatively since each represents an
// independent signal of relevance.
func applyBoosts(r *Result, opts Options) {
	if n := symbolMatchCount(r.Symbols, opts.QueryTerms); n > 0 {
		if n > 3 {
			n = 3
		}
		base := opts.SymbolBoostBase
		if base <= 0 {
			base = 1.5
		}
		r.RRFScore *= math.Pow(base, float64(n))
	}

	if opts.PathPattern != "" && strings.Contains(strings.ToLower(r.Path), strings.ToLower(opts.PathPattern)) {
		mult := opts.PathBoostMultiplier
		if mult <= 0 {
			mult = 1.2
		}
		r.RRFScore *= mult
	}

	if r.InBothLists && opts.OverlapBonus > 0 {
		r.RRFScore *= 1 + opts.OverlapBonus
	}
}

func symbolMatchCount(symbols, queryTerms []string) int {
	if len(symbols) == 0 || len(queryTerms) == 0 {
		return 0
	}
	symbolSet := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		symbolSet[strings.ToLower(s)] = true
	}
	count := 0
	for _, term := range queryTerms {
		if symbolSet[strings.ToLower(term)] {
			count++
		}
	}
	return count
}

func toSortedSlice(m map[string]*Result) []Result {
	results := make([]Result, 0, len(m))
	for _, r := range m {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		return a.DocID < b.DocID
	})
	return results
}

// groupByFile collapses results to one entry per file path, keeping the
// highest-scoring chunk per file and preserving the fused sort order.
func groupByFile(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if seen[r.Path] {
			continue
		}
		seen[r.Path] = true
		out = append(out, r)
	}
	return out
}
