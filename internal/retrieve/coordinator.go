package retrieve

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	engineerrors "github.com/hybridsearch/engine/internal/errors"
	"github.com/hybridsearch/engine/internal/inference"
	"github.com/hybridsearch/engine/internal/lexical"
	"github.com/hybridsearch/engine/internal/vectorstore"
)

const component = "retrieve"

// Coordinator fans a query out to the lexical and vector legs.
type Coordinator struct {
	lexical *lexical.Adapter
	vector  *vectorstore.Adapter
}

// New creates a Coordinator over the given lexical and vector adapters.
func New(lex *lexical.Adapter, vec *vectorstore.Adapter) *Coordinator {
	return &Coordinator{lexical: lex, vector: vec}
}

// Search runs the lexical and dense/hybrid legs concurrently. A store with
// no collection on either side yields an empty leg, not an error — that
// failure is recorded on Candidates but does not cancel the sibling leg.
// Any other leg failure is treated as unrecoverable: it cancels gctx so the
// sibling aborts best-effort, and Search returns the error (the failed
// leg's cause is still recorded on Candidates for the caller/telemetry).
// If both legs fail with a recoverable not-found, the joined errors are
// returned instead.
func (c *Coordinator) Search(ctx context.Context, store, queryText string, denseQuery []float32, sparseQuery inference.SparseVector, opts Options) (Candidates, error) {
	opts = opts.withDefaults()
	g, gctx := errgroup.WithContext(ctx)

	var cand Candidates

	g.Go(func() error {
		hits, err := c.lexical.Search(gctx, store, queryText, opts.LexicalTopK, opts.LexicalOpts)
		if err != nil {
			return recordLegErr(&cand.LexicalErr, err)
		}
		cand.Lexical = hits
		return nil
	})

	g.Go(func() error {
		if opts.UseHybrid {
			hits, err := c.vector.HybridSearch(gctx, store, denseQuery, vectorstore.SparseVector(sparseQuery), opts.DenseTopK, opts.Filter)
			if err != nil {
				return recordLegErr(&cand.VectorErr, err)
			}
			cand.Vector = hits
			return nil
		}
		hits, err := c.vector.Search(gctx, store, denseQuery, opts.DenseTopK, opts.Filter)
		if err != nil {
			return recordLegErr(&cand.VectorErr, err)
		}
		cand.Vector = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		return cand, err // an unrecoverable leg error, or ctx cancellation
	}

	if cand.LexicalErr != nil && cand.VectorErr != nil {
		return cand, errors.Join(cand.LexicalErr, cand.VectorErr)
	}
	return cand, nil
}

// recordLegErr classifies a leg's failure, records it on dst, and decides
// whether the sibling leg should keep running. A not-found collection is
// recoverable (the spec treats it as an empty result, not a failure) and
// returns nil so the other leg proceeds; anything else is an unrecoverable
// upstream error and is returned so errgroup cancels gctx and the sibling
// aborts.
func recordLegErr(dst *error, err error) error {
	if engineerrors.GetKind(err) == engineerrors.NotFound {
		*dst = engineerrors.New(engineerrors.NotFound, component, err.Error(), err)
		return nil
	}
	wrapped := engineerrors.UpstreamWrap(component, err)
	*dst = wrapped
	return wrapped
}
