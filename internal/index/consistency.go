package index

import (
	"context"
	"fmt"
	"time"

	"github.com/hybridsearch/engine/internal/lexical"
	"github.com/hybridsearch/engine/internal/tracker"
	"github.com/hybridsearch/engine/internal/vectorstore"
)

// InconsistencyType categorizes a detected count mismatch between the
// tracker (source of truth for what should be indexed) and a downstream
// store.
type InconsistencyType int

const (
	InconsistencyLexicalCount InconsistencyType = iota
	InconsistencyVectorCount
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyLexicalCount:
		return "lexical_count_mismatch"
	case InconsistencyVectorCount:
		return "vector_count_mismatch"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected mismatch.
type Inconsistency struct {
	Type     InconsistencyType
	Expected int
	Actual   int
	Details  string
}

// CheckResult is the outcome of a QuickCheck.
type CheckResult struct {
	TrackerChunks int
	Inconsistencies []Inconsistency
	Duration      time.Duration
}

// ConsistencyChecker compares the tracker's chunk count (the source of
// truth for what Submit has committed) against the lexical and vector
// stores' own document counts. It is a count-level check, not a per-id
// reconciliation: neither the lexical nor the vector adapter exposes doc_id
// enumeration, so a mismatch identifies that something has drifted without
// naming which chunk.
type ConsistencyChecker struct {
	tracker *tracker.Tracker
	lexical *lexical.Adapter
	vector  *vectorstore.Adapter
	store   string
}

// NewConsistencyChecker creates a checker for one store.
func NewConsistencyChecker(trk *tracker.Tracker, lex *lexical.Adapter, vec *vectorstore.Adapter, store string) *ConsistencyChecker {
	return &ConsistencyChecker{tracker: trk, lexical: lex, vector: vec, store: store}
}

// QuickCheck compares the tracker's chunk count against the lexical and
// vector stores' document counts for this checker's store.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (CheckResult, error) {
	start := time.Now()
	trackerCount := c.tracker.ChunkCount()

	lexStats, err := c.lexical.Stats(ctx, c.store)
	if err != nil {
		return CheckResult{}, fmt.Errorf("lexical stats: %w", err)
	}
	vecStats := c.vector.Stats(ctx, c.store)

	var issues []Inconsistency
	if lexStats.DocumentCount != trackerCount {
		issues = append(issues, Inconsistency{
			Type: InconsistencyLexicalCount, Expected: trackerCount, Actual: lexStats.DocumentCount,
			Details: "lexical document count does not match tracker chunk count",
		})
	}
	if vecStats.DenseCount != trackerCount {
		issues = append(issues, Inconsistency{
			Type: InconsistencyVectorCount, Expected: trackerCount, Actual: vecStats.DenseCount,
			Details: "vector dense count does not match tracker chunk count",
		})
	}

	return CheckResult{
		TrackerChunks:   trackerCount,
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}
