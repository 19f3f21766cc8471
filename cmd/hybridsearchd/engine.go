// Package main wires the fourteen components into a single process. It is
// not a CLI product: it exercises the library surface described by the
// engine's packages as a contract, the way an embedding application would.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hybridsearch/engine/internal/cache"
	"github.com/hybridsearch/engine/internal/chunk"
	"github.com/hybridsearch/engine/internal/config"
	"github.com/hybridsearch/engine/internal/fusion"
	"github.com/hybridsearch/engine/internal/index"
	"github.com/hybridsearch/engine/internal/inference"
	"github.com/hybridsearch/engine/internal/lexical"
	"github.com/hybridsearch/engine/internal/postrank"
	"github.com/hybridsearch/engine/internal/query"
	"github.com/hybridsearch/engine/internal/queue"
	"github.com/hybridsearch/engine/internal/rerank"
	"github.com/hybridsearch/engine/internal/retrieve"
	"github.com/hybridsearch/engine/internal/telemetry"
	"github.com/hybridsearch/engine/internal/tracker"
	"github.com/hybridsearch/engine/internal/vectorstore"
)

// Engine wires C1-C14 for a single store. Most deployments will want one
// Engine per store, or a thin registry keyed by store name; this wiring
// entrypoint only demonstrates the single-store shape.
type Engine struct {
	cfg *config.Config

	lexical    *lexical.Adapter
	vector     *vectorstore.Adapter
	inference  *inference.Client
	tracker    *tracker.Tracker
	queue      *queue.Queue
	processor  *queue.Processor
	pipeline   *index.Pipeline
	classifier *query.Classifier
	retriever  *retrieve.Coordinator
	reranker   *rerank.Reranker
	metrics    *telemetry.QueryMetrics

	store string
}

// NewEngine constructs every component for store, wiring each one's
// dependencies per SPEC_FULL's domain-stack table.
func NewEngine(cfg *config.Config, store string, logger *slog.Logger) (*Engine, error) {
	denseCache := cache.New[string, []float32](cfg.Cache.EmbeddingSize, cfg.Cache.EmbeddingTTL)
	sparseCache := cache.New[string, inference.SparseVector](cfg.Cache.EmbeddingSize, cfg.Cache.EmbeddingTTL)

	infClient := inference.New(inference.Config{
		EmbedEndpoint:      cfg.Inference.EmbedEndpoint,
		RerankEndpoint:     cfg.Inference.RerankEndpoint,
		HealthEndpoint:     cfg.Inference.HealthEndpoint,
		EmbedIndexTimeout:  cfg.Inference.EmbedIndexTimeout,
		EmbedQueryTimeout:  cfg.Inference.EmbedQueryTimeout,
		RerankQueryTimeout: cfg.Inference.RerankQueryTimeout,
		MaxIdleConns:       cfg.Inference.MaxIdleConns,
		CircuitMaxFails:    cfg.Inference.CircuitMaxFails,
		CircuitResetWait:   cfg.Inference.CircuitResetWait,
	}, logger).WithCaches(denseCache, sparseCache)

	lex := lexical.NewAdapter(cfg.Lexical.IndexDir)
	vec := vectorstore.NewAdapter(cfg.Vector.DefaultDimensions)

	trackerDir := filepath.Join(filepath.Dir(cfg.Lexical.IndexDir), "tracker")
	trk := tracker.New(trackerDir, store)
	if err := trk.Load(); err != nil {
		return nil, fmt.Errorf("load tracker: %w", err)
	}

	q, err := queue.Open(filepath.Join(cfg.Queue.DataDir, "queue.db"))
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	lockPath := filepath.Join(cfg.Queue.DataDir, "processor.lock")
	proc, err := queue.NewProcessor(q, lockPath)
	if err != nil {
		return nil, fmt.Errorf("acquire processor role: %w", err)
	}

	pipeline := index.New(index.Config{
		Store:     store,
		Lexical:   lex,
		Vector:    vec,
		Inference: infClient,
		Tracker:   trk,
		Queue:     q,
		Chunker:   chunk.NewCodeChunker(),
		UseHybrid: false,
		Logger:    logger,
	})

	db, err := sql.Open("sqlite", cfg.Telemetry.ExportPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	if err := telemetry.InitTelemetrySchema(db); err != nil {
		return nil, fmt.Errorf("init telemetry schema: %w", err)
	}
	metricsStore, err := telemetry.NewSQLiteMetricsStore(db)
	if err != nil {
		return nil, fmt.Errorf("create telemetry store: %w", err)
	}
	metricsCfg := telemetry.DefaultQueryMetricsConfig()
	metricsCfg.LatencyCapacity = cfg.Telemetry.RingSize
	metrics := telemetry.NewQueryMetricsWithConfig(metricsStore, metricsCfg)

	e := &Engine{
		cfg:        cfg,
		lexical:    lex,
		vector:     vec,
		inference:  infClient,
		tracker:    trk,
		queue:      q,
		processor:  proc,
		pipeline:   pipeline,
		classifier: query.New(cfg.Query.ClassifierCacheSize),
		retriever:  retrieve.New(lex, vec),
		reranker: rerank.New(infClient, cfg.Rerank.Timeout, rerank.Options{
			MinResults: cfg.Rerank.MinResults,
			TopK:       cfg.Rerank.TopN,
		}),
		metrics: metrics,
		store:   store,
	}
	return e, nil
}

// Start registers the pipeline's handlers with the Processor and begins
// draining both the store's lexical queue and the shared embedding queue.
func (e *Engine) Start(ctx context.Context, contentByPath map[string][]byte) {
	// One lexical worker per store keeps a single writer on its index.
	e.processor.Register(ctx, queue.LexicalQueueName(e.store), 1, e.pipeline.LexicalHandler())
	e.processor.Register(ctx, queue.GlobalEmbeddingQueue, e.cfg.Performance.IndexWorkers, e.pipeline.EmbeddingHandler(contentByPath))
}

// Index submits files for (re)indexing through C8.
func (e *Engine) Index(ctx context.Context, files []index.FileUpdate) error {
	return e.pipeline.Submit(ctx, files)
}

// Query runs a query through C9-C13 and records telemetry (C14).
func (e *Engine) Query(ctx context.Context, q string) ([]postrank.DisplayResult, error) {
	start := time.Now()
	class := e.classifier.Classify(q)

	embeds, err := e.inference.EmbedDense(ctx, []string{q}, false)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	dense := embeds[0]

	candidates, err := e.retriever.Search(ctx, e.store, query.Normalize(q), dense, nil, retrieve.Options{
		LexicalTopK: e.cfg.Retrieve.CandidateK,
		DenseTopK:   e.cfg.Retrieve.CandidateK,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	lexHits := make([]fusion.LexicalHit, len(candidates.Lexical))
	for i, h := range candidates.Lexical {
		lexHits[i] = fusion.LexicalHitFromSearch(h.DocID, h.Score, h.MatchedTerms)
	}
	vecHits := make([]fusion.VectorHit, len(candidates.Vector))
	for i, h := range candidates.Vector {
		vecHits[i] = fusion.VectorHitFromSearch(h.DocID, float64(h.Score), h.Metadata.Path, h.Metadata.Language, nil, h.Metadata.StartLine, h.Metadata.EndLine)
	}

	weights := fusion.DefaultWeights()
	weights.Lexical = e.cfg.Fusion.BM25Weight
	weights.Vector = e.cfg.Fusion.VectorWeight
	fusionOpts := fusion.DefaultOptions()
	fusionOpts.ConfidenceWeighted = e.cfg.Fusion.ConfidenceWeighted
	fusionOpts.MaxWeightBoost = e.cfg.Fusion.MaxWeightBoost
	fusionOpts.K = e.cfg.Fusion.RRFConstant
	fused := fusion.Fuse(lexHits, vecHits, weights, fusionOpts)

	rawScores := make([]float64, len(fused))
	rerankCandidates := make([]rerank.Candidate, len(fused))
	docIndex := make(map[string]int, len(fused))
	for i, r := range fused {
		rawScores[i] = r.RRFScore
		rerankCandidates[i] = rerank.Candidate{DocID: r.DocID, Content: r.Content, Score: r.RRFScore}
		docIndex[r.DocID] = i
	}

	if e.cfg.Rerank.Enabled {
		reranked := e.reranker.Rerank(ctx, q, rerankCandidates)
		for _, rr := range reranked {
			if i, ok := docIndex[rr.DocID]; ok {
				rawScores[i] = rr.RerankScore
			}
		}
	}

	results := postrank.Apply(fused, rawScores, postrank.Options{DedupByPath: true})

	e.metrics.Record(telemetry.QueryEvent{
		Query:       q,
		QueryType:   telemetry.FromClassification(class),
		ResultCount: len(results),
		Latency:     time.Since(start),
		Timestamp:   time.Now(),
	})

	return results, nil
}

// Close releases every held resource, in reverse wiring order.
func (e *Engine) Close() error {
	_ = e.metrics.Close()
	e.inference.Close()
	_ = e.lexical.Close()
	_ = e.processor.Close()
	return e.queue.Close()
}
