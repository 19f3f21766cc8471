// Package index implements the index pipeline (C8): it classifies
// submitted files against the per-store Tracker (C6), chunks new/changed
// files (C5), and drains them through the durable job queue (C7) into the
// lexical index (C3) and vector store (C4), committing the tracker only
// once a sub-batch's embeddings have landed.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hybridsearch/engine/internal/chunk"
	"github.com/hybridsearch/engine/internal/inference"
	"github.com/hybridsearch/engine/internal/lexical"
	"github.com/hybridsearch/engine/internal/model"
	"github.com/hybridsearch/engine/internal/queue"
	"github.com/hybridsearch/engine/internal/tracker"
	"github.com/hybridsearch/engine/internal/vectorstore"
)

// MaxCommitBatch bounds how many chunks are embedded and committed to the
// tracker in a single pass, per the spec's sub-batching requirement.
const MaxCommitBatch = 3000

// FileUpdate is one file submitted for (re)indexing.
type FileUpdate struct {
	Path     string
	Content  []byte
	Language string
}

// Config wires the pipeline's dependencies for a single store.
type Config struct {
	Store     string
	Lexical   *lexical.Adapter
	Vector    *vectorstore.Adapter
	Inference *inference.Client
	Tracker   *tracker.Tracker
	Queue     *queue.Queue
	Chunker   chunk.Chunker
	UseHybrid bool
	Logger    *slog.Logger
}

// Pipeline implements C8's classify/chunk/enqueue/commit flow.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline. cfg.Tracker must already be Load()ed.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// Submit classifies each file as new/changed/unchanged against the
// tracker, chunks the new/changed ones, and enqueues a lexical job plus a
// global embedding job per sub-batch. Re-submitting an already-indexed,
// unchanged file is a no-op: classification alone makes resubmission
// idempotent without touching the queue.
func (p *Pipeline) Submit(ctx context.Context, files []FileUpdate) error {
	paths := make([]string, len(files))
	contents := make([][]byte, len(files))
	for i, f := range files {
		paths[i] = f.Path
		contents[i] = f.Content
	}
	statuses := p.cfg.Tracker.CheckFiles(paths, contents)

	var toIndex []FileUpdate
	for _, f := range files {
		switch statuses[f.Path] {
		case tracker.StatusNew, tracker.StatusChanged:
			toIndex = append(toIndex, f)
		case tracker.StatusUnchanged:
			continue
		}
	}
	if len(toIndex) == 0 {
		return nil
	}

	chunksByFile := make(map[string][]model.Chunk, len(toIndex))
	var allChunks []model.Chunk
	for _, f := range toIndex {
		results, err := p.cfg.Chunker.Chunk(ctx, &chunk.FileInput{Path: f.Path, Content: f.Content, Language: f.Language})
		if err != nil {
			return fmt.Errorf("chunk %s: %w", f.Path, err)
		}
		chunks := make([]model.Chunk, 0, len(results))
		for _, r := range results {
			chunks = append(chunks, model.Chunk{
				DocID:      chunk.DocID(r.Path, r.ChunkIndex, len(r.Content)),
				Path:       r.Path,
				Language:   r.Language,
				StartLine:  r.StartLine,
				EndLine:    r.EndLine,
				Content:    r.Content,
				ChunkIndex: r.ChunkIndex,
				Symbols:    r.Symbols,
				NodeType:   r.NodeType,
			})
		}
		chunksByFile[f.Path] = chunks
		allChunks = append(allChunks, chunks...)
	}

	for _, batch := range packByFile(toIndex, chunksByFile, MaxCommitBatch) {
		if _, err := p.cfg.Queue.Enqueue(queue.LexicalQueueName(p.cfg.Store), &model.Job{
			Store:     p.cfg.Store,
			Kind:      model.JobIndex,
			Documents: batch.chunks,
		}); err != nil {
			return fmt.Errorf("enqueue lexical job: %w", err)
		}
		if _, err := p.cfg.Queue.Enqueue(queue.GlobalEmbeddingQueue, &model.Job{
			Store:     p.cfg.Store,
			Kind:      model.JobIndex,
			Documents: batch.chunks,
		}); err != nil {
			return fmt.Errorf("enqueue embedding job: %w", err)
		}
	}
	return nil
}

// fileBatch is a sub-batch of whole files packed under MaxCommitBatch
// chunks, so a file's tracker commit never straddles two sub-batches.
type fileBatch struct {
	paths  []string
	chunks []model.Chunk
}

func packByFile(files []FileUpdate, chunksByFile map[string][]model.Chunk, maxBatch int) []fileBatch {
	var batches []fileBatch
	var cur fileBatch
	for _, f := range files {
		chunks := chunksByFile[f.Path]
		if len(cur.chunks) > 0 && len(cur.chunks)+len(chunks) > maxBatch {
			batches = append(batches, cur)
			cur = fileBatch{}
		}
		cur.paths = append(cur.paths, f.Path)
		cur.chunks = append(cur.chunks, chunks...)
	}
	if len(cur.chunks) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// LexicalHandler returns a queue.Handler that indexes a job's documents
// into the lexical adapter. Idempotent: Index upserts by doc_id.
func (p *Pipeline) LexicalHandler() queue.Handler {
	return func(ctx context.Context, job *model.Job) error {
		if job.Kind == model.JobDelete {
			if len(job.DocIDs) > 0 {
				return p.cfg.Lexical.DeleteByDocIDs(ctx, job.Store, job.DocIDs)
			}
			return nil
		}
		return p.cfg.Lexical.Index(ctx, job.Store, job.Documents)
	}
}

// EmbeddingHandler returns a queue.Handler that embeds a job's documents,
// upserts them into the vector store, and commits the tracker only for
// files whose chunks are entirely contained in this job. A job that fails
// partway (e.g. the inference call errors) leaves the tracker untouched
// for every file in the job, since Handler failures trigger a C7 retry of
// the whole job and Index/Upsert are themselves idempotent on re-delivery.
func (p *Pipeline) EmbeddingHandler(contentByPath map[string][]byte) queue.Handler {
	return func(ctx context.Context, job *model.Job) error {
		if job.Kind == model.JobDelete {
			if len(job.DocIDs) > 0 {
				return p.cfg.Vector.DeleteByDocIDs(ctx, job.Store, job.DocIDs)
			}
			return nil
		}

		if len(job.Documents) == 0 {
			return nil
		}

		texts := make([]string, len(job.Documents))
		for i, c := range job.Documents {
			texts[i] = c.Content
		}

		docs := make([]vectorstore.Doc, 0, len(job.Documents))
		if p.cfg.UseHybrid {
			results, err := p.cfg.Inference.EmbedBoth(ctx, texts, true)
			if err != nil {
				return fmt.Errorf("embed batch: %w", err)
			}
			if len(results) != len(job.Documents) {
				return fmt.Errorf("embed batch: expected %d results, got %d", len(job.Documents), len(results))
			}
			for i, c := range job.Documents {
				d := vectorstore.DocFromChunk(c, results[i].Dense)
				d.Sparse = vectorstore.SparseVector(results[i].Sparse)
				docs = append(docs, d)
			}
		} else {
			dense, err := p.cfg.Inference.EmbedDense(ctx, texts, true)
			if err != nil {
				return fmt.Errorf("embed batch: %w", err)
			}
			if len(dense) != len(job.Documents) {
				return fmt.Errorf("embed batch: expected %d results, got %d", len(job.Documents), len(dense))
			}
			for i, c := range job.Documents {
				docs = append(docs, vectorstore.DocFromChunk(c, dense[i]))
			}
		}

		if err := p.cfg.Vector.Upsert(ctx, job.Store, docs); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}

		p.commitTracker(job.Documents, contentByPath)
		return nil
	}
}

// commitTracker marks every file represented in chunks as indexed, using
// the caller-supplied content lookup to compute the tracked hash.
func (p *Pipeline) commitTracker(chunks []model.Chunk, contentByPath map[string][]byte) {
	chunkIDsByPath := make(map[string][]string)
	for _, c := range chunks {
		chunkIDsByPath[c.Path] = append(chunkIDsByPath[c.Path], c.DocID)
	}
	for path, ids := range chunkIDsByPath {
		content, ok := contentByPath[path]
		if !ok {
			p.logger.Warn("commit_tracker_missing_content", slog.String("path", path))
			continue
		}
		p.cfg.Tracker.Track(path, content, ids)
	}
	if err := p.cfg.Tracker.Save(); err != nil {
		p.logger.Error("tracker_save_failed", slog.String("error", err.Error()))
	}
}

// Delete removes a single file from both the lexical index and the vector
// store, enqueuing delete jobs so the removal goes through the same
// durable, retried path as indexing.
func (p *Pipeline) Delete(ctx context.Context, path string) error {
	docIDs := p.cfg.Tracker.Untrack(path)
	if len(docIDs) == 0 {
		return nil
	}
	if err := p.cfg.Tracker.Save(); err != nil {
		return fmt.Errorf("save tracker: %w", err)
	}
	if _, err := p.cfg.Queue.Enqueue(queue.LexicalQueueName(p.cfg.Store), &model.Job{
		Store: p.cfg.Store, Kind: model.JobDelete, DocIDs: docIDs,
	}); err != nil {
		return fmt.Errorf("enqueue lexical delete: %w", err)
	}
	if _, err := p.cfg.Queue.Enqueue(queue.GlobalEmbeddingQueue, &model.Job{
		Store: p.cfg.Store, Kind: model.JobDelete, DocIDs: docIDs,
	}); err != nil {
		return fmt.Errorf("enqueue vector delete: %w", err)
	}
	return nil
}

// DeletePrefix removes every tracked file under prefix (a directory
// rename/removal), in one pair of delete jobs.
func (p *Pipeline) DeletePrefix(ctx context.Context, prefix string) error {
	docIDs := p.cfg.Tracker.UntrackByPrefix(prefix)
	if len(docIDs) == 0 {
		return nil
	}
	if err := p.cfg.Tracker.Save(); err != nil {
		return fmt.Errorf("save tracker: %w", err)
	}
	if _, err := p.cfg.Queue.Enqueue(queue.LexicalQueueName(p.cfg.Store), &model.Job{
		Store: p.cfg.Store, Kind: model.JobDelete, Prefix: prefix, DocIDs: docIDs,
	}); err != nil {
		return fmt.Errorf("enqueue lexical prefix delete: %w", err)
	}
	if _, err := p.cfg.Queue.Enqueue(queue.GlobalEmbeddingQueue, &model.Job{
		Store: p.cfg.Store, Kind: model.JobDelete, Prefix: prefix, DocIDs: docIDs,
	}); err != nil {
		return fmt.Errorf("enqueue vector prefix delete: %w", err)
	}
	return nil
}

// Reindex clears the tracker and drops both stores for this pipeline's
// store name, so a subsequent Submit of every file rebuilds from scratch.
func (p *Pipeline) Reindex(ctx context.Context) error {
	if err := p.cfg.Vector.DropCollection(ctx, p.cfg.Store); err != nil {
		return fmt.Errorf("drop vector collection: %w", err)
	}
	if err := p.cfg.Lexical.DropStore(p.cfg.Store); err != nil {
		return fmt.Errorf("drop lexical store: %w", err)
	}
	p.cfg.Tracker.Clear()
	return p.cfg.Tracker.Save()
}
