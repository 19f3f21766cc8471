package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridsearch/engine/internal/lexical"
	"github.com/hybridsearch/engine/internal/model"
	"github.com/hybridsearch/engine/internal/tracker"
	"github.com/hybridsearch/engine/internal/vectorstore"
)

func TestQuickCheckReportsNoIssuesWhenCountsMatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	trk := tracker.New(dir, "s1")
	require.NoError(t, trk.Load())
	trk.Track("a.go", []byte("x"), []string{"a.go#0#1"})

	lex := lexical.NewAdapter(dir)
	t.Cleanup(func() { _ = lex.Close() })
	require.NoError(t, lex.Index(ctx, "s1", []model.Chunk{{DocID: "a.go#0#1", Path: "a.go", Content: "x"}}))

	vec := vectorstore.NewAdapter(3)
	require.NoError(t, vec.CreateCollection(ctx, "s1", false))
	require.NoError(t, vec.Upsert(ctx, "s1", []vectorstore.Doc{{DocID: "a.go#0#1", Dense: []float32{1, 0, 0}, Path: "a.go"}}))

	checker := NewConsistencyChecker(trk, lex, vec, "s1")
	result, err := checker.QuickCheck(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TrackerChunks)
	assert.Empty(t, result.Inconsistencies)
}

func TestQuickCheckDetectsVectorCountMismatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	trk := tracker.New(dir, "s1")
	require.NoError(t, trk.Load())
	trk.Track("a.go", []byte("x"), []string{"a.go#0#1"})

	lex := lexical.NewAdapter(dir)
	t.Cleanup(func() { _ = lex.Close() })
	require.NoError(t, lex.Index(ctx, "s1", []model.Chunk{{DocID: "a.go#0#1", Path: "a.go", Content: "x"}}))

	vec := vectorstore.NewAdapter(3)
	require.NoError(t, vec.CreateCollection(ctx, "s1", false))

	checker := NewConsistencyChecker(trk, lex, vec, "s1")
	result, err := checker.QuickCheck(ctx)
	require.NoError(t, err)

	require.Len(t, result.Inconsistencies, 1)
	assert.Equal(t, InconsistencyVectorCount, result.Inconsistencies[0].Type)
	assert.Equal(t, 1, result.Inconsistencies[0].Expected)
	assert.Equal(t, 0, result.Inconsistencies[0].Actual)
}
