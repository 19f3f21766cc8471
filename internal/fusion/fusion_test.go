package fusion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexHit(id string, terms ...string) LexicalHit {
	return LexicalHit{Candidate: Candidate{DocID: id, Path: PathFromDocID(id), MatchedTerms: terms}, Score: 1.0}
}

func vecHit(id string, symbols ...string) VectorHit {
	return VectorHit{Candidate: Candidate{DocID: id, Path: PathFromDocID(id), Symbols: symbols}, Score: 0.9}
}

func TestFuseEmptyInputsReturnsEmptySlice(t *testing.T) {
	results := Fuse(nil, nil, DefaultWeights(), DefaultOptions())
	assert.Empty(t, results)
}

func TestFuseDocumentInBothListsScoresHigherThanSingleList(t *testing.T) {
	lexical := []LexicalHit{lexHit("a.go#0#1"), lexHit("b.go#0#2")}
	vector := []VectorHit{vecHit("a.go#0#1")}

	results := Fuse(lexical, vector, DefaultWeights(), DefaultOptions())
	require.Len(t, results, 2)
	assert.Equal(t, "a.go#0#1", results[0].DocID)
	assert.True(t, results[0].InBothLists)
	assert.False(t, results[1].InBothLists)
	assert.Greater(t, results[0].RRFScore, results[1].RRFScore)
}

func TestFuseDocumentInOneListOnlyStillRanked(t *testing.T) {
	lexical := []LexicalHit{lexHit("only.go#0#1")}
	results := Fuse(lexical, nil, DefaultWeights(), DefaultOptions())
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].LexicalRank)
	assert.Equal(t, 0, results[0].VectorRank)
	assert.Greater(t, results[0].RRFScore, 0.0)
}

func TestFuseTieBreaksByDocIDAscending(t *testing.T) {
	// Both docs rank 1 in their own (disjoint) lists, so equal RRF scores.
	lexical := []LexicalHit{lexHit("zeta.go#0#1")}
	vector := []VectorHit{vecHit("alpha.go#0#2")}
	results := Fuse(lexical, vector, DefaultWeights(), DefaultOptions())
	require.Len(t, results, 2)
	assert.Equal(t, "alpha.go#0#2", results[0].DocID)
	assert.Equal(t, "zeta.go#0#1", results[1].DocID)
}

func TestFuseSymbolBoostIncreasesScore(t *testing.T) {
	vector := []VectorHit{vecHit("a.go#0#1", "ParseRequest")}
	opts := DefaultOptions()
	opts.QueryTerms = []string{"ParseRequest"}

	withBoost := Fuse(nil, vector, DefaultWeights(), opts)
	withoutBoost := Fuse(nil, vector, DefaultWeights(), DefaultOptions())
	require.Len(t, withBoost, 1)
	require.Len(t, withoutBoost, 1)
	assert.Greater(t, withBoost[0].RRFScore, withoutBoost[0].RRFScore)
}

func TestFuseSymbolBoostCapsAtThreeMatches(t *testing.T) {
	vector := []VectorHit{vecHit("a.go#0#1", "Foo", "Bar", "Baz", "Qux")}
	opts := DefaultOptions()
	opts.QueryTerms = []string{"Foo", "Bar", "Baz", "Qux"}

	threeTermOpts := DefaultOptions()
	threeTermOpts.QueryTerms = []string{"Foo", "Bar", "Baz"}

	all := Fuse(nil, vector, DefaultWeights(), opts)
	three := Fuse(nil, vector, DefaultWeights(), threeTermOpts)
	require.Len(t, all, 1)
	require.Len(t, three, 1)
	assert.InDelta(t, three[0].RRFScore, all[0].RRFScore, 1e-9)
}

func TestFusePathBoostAppliesOnMatch(t *testing.T) {
	vector := []VectorHit{vecHit("internal/auth/login.go#0#1")}
	opts := DefaultOptions()
	opts.PathPattern = "auth"

	boosted := Fuse(nil, vector, DefaultWeights(), opts)
	plain := Fuse(nil, vector, DefaultWeights(), DefaultOptions())
	require.Len(t, boosted, 1)
	require.Len(t, plain, 1)
	assert.Greater(t, boosted[0].RRFScore, plain[0].RRFScore)
}

func TestFuseOverlapBonusAppliesOnlyToBothLists(t *testing.T) {
	lexical := []LexicalHit{lexHit("a.go#0#1"), lexHit("b.go#0#2")}
	vector := []VectorHit{vecHit("a.go#0#1")}

	opts := DefaultOptions()
	opts.OverlapBonus = 0
	noBonus := Fuse(lexical, vector, DefaultWeights(), opts)

	withBonus := Fuse(lexical, vector, DefaultWeights(), DefaultOptions())

	var noBonusA, withBonusA float64
	for _, r := range noBonus {
		if r.DocID == "a.go#0#1" {
			noBonusA = r.RRFScore
		}
	}
	for _, r := range withBonus {
		if r.DocID == "a.go#0#1" {
			withBonusA = r.RRFScore
		}
	}
	assert.Greater(t, withBonusA, noBonusA)
}

func TestFuseWeightSensitivityFavorsLexicalWhenWeighted(t *testing.T) {
	lexical := []LexicalHit{lexHit("lex.go#0#1")}
	vector := []VectorHit{vecHit("vec.go#0#2")}

	lexicalHeavy := Weights{Lexical: 0.9, Vector: 0.1}
	results := Fuse(lexical, vector, lexicalHeavy, DefaultOptions())
	require.Len(t, results, 2)
	assert.Equal(t, "lex.go#0#1", results[0].DocID)
}

func TestFuseGroupByFileCollapsesMultipleChunksPerFile(t *testing.T) {
	lexical := []LexicalHit{lexHit("a.go#0#1"), lexHit("a.go#1#2")}
	opts := DefaultOptions()
	opts.GroupByFile = true
	results := Fuse(lexical, nil, DefaultWeights(), opts)
	require.Len(t, results, 1)
	assert.Equal(t, "a.go", results[0].Path)
}

func TestFuseWithoutGroupByFileKeepsAllChunks(t *testing.T) {
	lexical := []LexicalHit{lexHit("a.go#0#1"), lexHit("a.go#1#2")}
	results := Fuse(lexical, nil, DefaultWeights(), DefaultOptions())
	assert.Len(t, results, 2)
}

func TestFusePreservesMatchedTerms(t *testing.T) {
	lexical := []LexicalHit{lexHit("a.go#0#1", "ParseRequest", "Handler")}
	results := Fuse(lexical, nil, DefaultWeights(), DefaultOptions())
	require.Len(t, results, 1)
	assert.ElementsMatch(t, []string{"ParseRequest", "Handler"}, results[0].MatchedTerms)
}

func TestPathFromDocIDRecoversOriginalPath(t *testing.T) {
	assert.Equal(t, "a/b.go", PathFromDocID("a/b.go#0#deadbeef"))
	assert.Equal(t, "a/b/c.go", PathFromDocID("a/b/c.go#3#cafef00d"))
}

func TestConfidenceWeightedFusionFavorsClearerModality(t *testing.T) {
	// Lexical shows a sharp top-1 gap over a full top-10 (high confidence);
	// vector's top two scores are nearly flat (low confidence). "shared"
	// ranks 1st lexically but only 2nd on the vector side, so shifting
	// weight toward the more confident (lexical) leg should raise its
	// fused score above the flat 50/50 baseline.
	lexical := make([]LexicalHit, 0, 10)
	lexical = append(lexical, LexicalHit{Candidate: Candidate{DocID: "shared"}, Score: 100.0})
	for i := 1; i < 10; i++ {
		lexical = append(lexical, LexicalHit{Candidate: Candidate{DocID: fmt.Sprintf("lex%d", i)}, Score: 1.0})
	}
	vector := []VectorHit{
		{Candidate: Candidate{DocID: "vec0"}, Score: 0.51},
		{Candidate: Candidate{DocID: "shared"}, Score: 0.50},
	}

	flat := DefaultOptions()
	weighted := DefaultOptions()
	weighted.ConfidenceWeighted = true
	weighted.MaxWeightBoost = 1.0

	flatResults := Fuse(lexical, vector, DefaultWeights(), flat)
	weightedResults := Fuse(lexical, vector, DefaultWeights(), weighted)

	var flatShared, weightedShared float64
	for _, r := range flatResults {
		if r.DocID == "shared" {
			flatShared = r.RRFScore
		}
	}
	for _, r := range weightedResults {
		if r.DocID == "shared" {
			weightedShared = r.RRFScore
		}
	}
	assert.Greater(t, weightedShared, flatShared)
}

func TestConfidenceWeightedFusionSkipsShiftWhenOneLegEmpty(t *testing.T) {
	lexical := []LexicalHit{lexHit("a.go#0#1")}
	opts := DefaultOptions()
	opts.ConfidenceWeighted = true

	results := Fuse(lexical, nil, DefaultWeights(), opts)
	require.Len(t, results, 1)
	assert.Greater(t, results[0].RRFScore, 0.0)
}

func TestFuseCustomKChangesDistribution(t *testing.T) {
	lexical := []LexicalHit{lexHit("a.go#0#1")}
	vector := []VectorHit{vecHit("b.go#0#2")}

	lowK := DefaultOptions()
	lowK.K = 1
	results := Fuse(lexical, vector, DefaultWeights(), lowK)
	require.Len(t, results, 2)
	assert.Greater(t, results[0].RRFScore, 0.0)
}
