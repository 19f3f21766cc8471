// Package model holds the data types shared across every search component:
// chunks, tracked files, stores, fused results, and queue jobs.
package model

import "time"

// Chunk is a searchable unit produced by the chunker (C5).
type Chunk struct {
	DocID      string   `json:"doc_id"`
	Path       string   `json:"path"`
	Language   string   `json:"language"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Content    string   `json:"content"`
	ChunkIndex int      `json:"chunk_index"`
	Symbols    []string `json:"symbols"`
	NodeType   string   `json:"node_type,omitempty"`
}

// TrackedFile is per-store indexing state for one path.
type TrackedFile struct {
	Path      string    `json:"path"`
	Hash      string    `json:"hash"`
	Size      int64     `json:"size"`
	IndexedAt time.Time `json:"indexed_at"`
	ChunkIDs  []string  `json:"chunk_ids"`
}

// Store is an isolation boundary for indexed content.
type Store struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SearchResult is a fused, ranked hit returned to the caller.
type SearchResult struct {
	DocID       string   `json:"doc_id"`
	Path        string   `json:"path"`
	Language    string   `json:"language"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	Content     string   `json:"content"`
	Symbols     []string `json:"symbols"`
	FinalScore  float64  `json:"final_score"`
	SparseScore *float64 `json:"sparse_score,omitempty"`
	DenseScore  *float64 `json:"dense_score,omitempty"`
	SparseRank  int      `json:"sparse_rank,omitempty"`
	DenseRank   int      `json:"dense_rank,omitempty"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
	RerankRank  int      `json:"rerank_rank,omitempty"`
}

// JobKind distinguishes index jobs from delete jobs.
type JobKind string

const (
	JobIndex  JobKind = "index"
	JobDelete JobKind = "delete"
)

// JobStatus tracks where a job sits in its lifecycle.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusRetrying  JobStatus = "retrying"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a unit of work accepted by the job queue (C7).
type Job struct {
	ID         uint64    `json:"id"`
	Queue      string    `json:"queue"`
	Store      string    `json:"store"`
	Kind       JobKind   `json:"kind"`
	Documents  []Chunk   `json:"documents,omitempty"`
	Paths      []string  `json:"paths,omitempty"`
	Prefix     string    `json:"prefix,omitempty"`
	DocIDs     []string  `json:"doc_ids,omitempty"`
	Status     JobStatus `json:"status"`
	Attempt    int       `json:"attempt"`
	SubmittedAt time.Time `json:"submitted_at"`
	NextRunAt  time.Time `json:"next_run_at"`
	LastError  string    `json:"last_error,omitempty"`
}
