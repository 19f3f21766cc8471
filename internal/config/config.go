// Package config loads and validates the engine's YAML configuration,
// covering every tunable exposed by the fourteen search components.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Version     int               `yaml:"version"`
	Cache       CacheConfig       `yaml:"cache"`
	Inference   InferenceConfig   `yaml:"inference"`
	Lexical     LexicalConfig     `yaml:"lexical"`
	Vector      VectorConfig      `yaml:"vector"`
	Chunk       ChunkConfig       `yaml:"chunk"`
	Queue       QueueConfig       `yaml:"queue"`
	Query       QueryConfig       `yaml:"query"`
	Retrieve    RetrieveConfig    `yaml:"retrieve"`
	Fusion      FusionConfig      `yaml:"fusion"`
	Rerank      RerankConfig      `yaml:"rerank"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Performance PerformanceConfig `yaml:"performance"`
}

// CacheConfig tunes the bounded LRU+TTL caches (C1).
type CacheConfig struct {
	EmbeddingSize int           `yaml:"embedding_size"`
	EmbeddingTTL  time.Duration `yaml:"embedding_ttl"`
	RerankSize    int           `yaml:"rerank_size"`
	RerankTTL     time.Duration `yaml:"rerank_ttl"`
}

// InferenceConfig configures the embed/rerank HTTP client (C2).
type InferenceConfig struct {
	EmbedEndpoint      string        `yaml:"embed_endpoint"`
	RerankEndpoint     string        `yaml:"rerank_endpoint"`
	HealthEndpoint     string        `yaml:"health_endpoint"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	EmbedIndexTimeout  time.Duration `yaml:"embed_index_timeout"`  // batch embedding during indexing, default 300s
	EmbedQueryTimeout  time.Duration `yaml:"embed_query_timeout"`  // query-time embedding, default 30s
	RerankQueryTimeout time.Duration `yaml:"rerank_query_timeout"` // query-time rerank, default 100ms
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	CircuitMaxFails    int           `yaml:"circuit_max_fails"`
	CircuitResetWait   time.Duration `yaml:"circuit_reset_wait"`
}

// LexicalConfig tunes the BM25 adapter (C3).
type LexicalConfig struct {
	IndexDir string `yaml:"index_dir"`
}

// VectorConfig tunes the vector store adapter (C4).
type VectorConfig struct {
	DataDir               string        `yaml:"data_dir"`
	DefaultDimensions      int           `yaml:"default_dimensions"`
	CollectionCacheTTL     time.Duration `yaml:"collection_cache_ttl"`
	HNSWM                  int           `yaml:"hnsw_m"`
	HNSWEfConstruction     int           `yaml:"hnsw_ef_construction"`
	HNSWEfSearch           int           `yaml:"hnsw_ef_search"`
}

// ChunkConfig holds chunking settings (C5). They are validated and
// persisted here only: the chunker does not read them and always uses its
// own fixed constants (100-line fallback windows, 5-line overlap, 10-line
// merge threshold).
type ChunkConfig struct {
	MaxLines   int `yaml:"max_lines"`
	MinLines   int `yaml:"min_lines"`
	OverlapPct int `yaml:"overlap_pct"`
}

// QueueConfig tunes the durable job queue (C7).
type QueueConfig struct {
	DataDir         string        `yaml:"data_dir"`
	BaseBackoff     time.Duration `yaml:"base_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	CompletedRetain int           `yaml:"completed_retain"`
}

// QueryConfig tunes classification/normalization (C9).
type QueryConfig struct {
	ClassifierCacheSize int     `yaml:"classifier_cache_size"`
	CodeThreshold       float64 `yaml:"code_threshold"`
	NaturalThreshold    float64 `yaml:"natural_threshold"`
}

// RetrieveConfig tunes the retriever coordinator (C10).
type RetrieveConfig struct {
	FanoutTimeout time.Duration `yaml:"fanout_timeout"`
	CandidateK    int           `yaml:"candidate_k"`
}

// FusionConfig tunes RRF fusion (C11).
type FusionConfig struct {
	RRFConstant        int     `yaml:"rrf_constant"`
	BM25Weight         float64 `yaml:"bm25_weight"`
	VectorWeight       float64 `yaml:"vector_weight"`
	MaxWeightBoost     float64 `yaml:"max_weight_boost"`
	ConfidenceWeighted bool    `yaml:"confidence_weighted"`
}

// RerankConfig tunes reranking (C12).
type RerankConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TopN       int           `yaml:"top_n"`
	Timeout    time.Duration `yaml:"timeout"`
	MinResults int           `yaml:"min_results"`
}

// TelemetryConfig tunes the telemetry ring buffer and durable export (C14).
type TelemetryConfig struct {
	RingSize   int    `yaml:"ring_size"`
	ExportPath string `yaml:"export_path"`
}

// PerformanceConfig configures shared concurrency limits.
type PerformanceConfig struct {
	IndexWorkers int `yaml:"index_workers"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Cache: CacheConfig{
			EmbeddingSize: 10000,
			EmbeddingTTL:  30 * time.Minute,
			RerankSize:    2000,
			RerankTTL:     10 * time.Minute,
		},
		Inference: InferenceConfig{
			EmbedEndpoint:      "http://localhost:8081/embeddings",
			RerankEndpoint:     "http://localhost:8081/rerank",
			HealthEndpoint:     "http://localhost:8081/health",
			RequestTimeout:     10 * time.Second,
			EmbedIndexTimeout:  300 * time.Second,
			EmbedQueryTimeout:  30 * time.Second,
			RerankQueryTimeout: 100 * time.Millisecond,
			MaxIdleConns:       64,
			CircuitMaxFails:    5,
			CircuitResetWait:   30 * time.Second,
		},
		Lexical: LexicalConfig{
			IndexDir: defaultDataDir("lexical"),
		},
		Vector: VectorConfig{
			DataDir:            defaultDataDir("vector"),
			DefaultDimensions:  768,
			CollectionCacheTTL: 5 * time.Minute,
			HNSWM:              16,
			HNSWEfConstruction: 200,
			HNSWEfSearch:       64,
		},
		Chunk: ChunkConfig{
			MaxLines:   200,
			MinLines:   10,
			OverlapPct: 10,
		},
		Queue: QueueConfig{
			DataDir:         defaultDataDir("queue"),
			BaseBackoff:     2 * time.Second,
			MaxBackoff:      30 * time.Second,
			CompletedRetain: 100,
		},
		Query: QueryConfig{
			ClassifierCacheSize: 1000,
			CodeThreshold:       0.6,
			NaturalThreshold:    0.3,
		},
		Retrieve: RetrieveConfig{
			FanoutTimeout: 5 * time.Second,
			CandidateK:    100,
		},
		Fusion: FusionConfig{
			RRFConstant:        60,
			BM25Weight:         0.5,
			VectorWeight:       0.5,
			MaxWeightBoost:     0.3,
			ConfidenceWeighted: true,
		},
		Rerank: RerankConfig{
			Enabled:    true,
			TopN:       50,
			Timeout:    2 * time.Second,
			MinResults: 2,
		},
		Telemetry: TelemetryConfig{
			RingSize:   10000,
			ExportPath: defaultDataDir("telemetry.db"),
		},
		Performance: PerformanceConfig{
			IndexWorkers: 4,
		},
	}
}

func defaultDataDir(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hybridsearch", name)
	}
	return filepath.Join(home, ".hybridsearch", name)
}

// Load builds a configuration from defaults, an optional YAML file found in
// dir (.hybridsearch.yaml or .hybridsearch.yml), then environment variable
// overrides, validating the result.
func Load(dir string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".hybridsearch.yaml", ".hybridsearch.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)

	// Booleans are applied whenever the file sets them, since false is also
	// their zero value and mergeWith cannot tell it from "not set".
	var flags struct {
		Fusion struct {
			ConfidenceWeighted *bool `yaml:"confidence_weighted"`
		} `yaml:"fusion"`
		Rerank struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"rerank"`
	}
	if err := yaml.Unmarshal(data, &flags); err == nil {
		if flags.Fusion.ConfidenceWeighted != nil {
			c.Fusion.ConfidenceWeighted = *flags.Fusion.ConfidenceWeighted
		}
		if flags.Rerank.Enabled != nil {
			c.Rerank.Enabled = *flags.Rerank.Enabled
		}
	}
	return nil
}

// mergeWith overlays non-zero fields from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Cache.EmbeddingSize != 0 {
		c.Cache.EmbeddingSize = other.Cache.EmbeddingSize
	}
	if other.Cache.EmbeddingTTL != 0 {
		c.Cache.EmbeddingTTL = other.Cache.EmbeddingTTL
	}
	if other.Cache.RerankSize != 0 {
		c.Cache.RerankSize = other.Cache.RerankSize
	}
	if other.Cache.RerankTTL != 0 {
		c.Cache.RerankTTL = other.Cache.RerankTTL
	}
	if other.Inference.EmbedEndpoint != "" {
		c.Inference.EmbedEndpoint = other.Inference.EmbedEndpoint
	}
	if other.Inference.RerankEndpoint != "" {
		c.Inference.RerankEndpoint = other.Inference.RerankEndpoint
	}
	if other.Inference.HealthEndpoint != "" {
		c.Inference.HealthEndpoint = other.Inference.HealthEndpoint
	}
	if other.Inference.RequestTimeout != 0 {
		c.Inference.RequestTimeout = other.Inference.RequestTimeout
	}
	if other.Inference.EmbedIndexTimeout != 0 {
		c.Inference.EmbedIndexTimeout = other.Inference.EmbedIndexTimeout
	}
	if other.Inference.EmbedQueryTimeout != 0 {
		c.Inference.EmbedQueryTimeout = other.Inference.EmbedQueryTimeout
	}
	if other.Inference.RerankQueryTimeout != 0 {
		c.Inference.RerankQueryTimeout = other.Inference.RerankQueryTimeout
	}
	if other.Inference.MaxIdleConns != 0 {
		c.Inference.MaxIdleConns = other.Inference.MaxIdleConns
	}
	if other.Inference.CircuitMaxFails != 0 {
		c.Inference.CircuitMaxFails = other.Inference.CircuitMaxFails
	}
	if other.Inference.CircuitResetWait != 0 {
		c.Inference.CircuitResetWait = other.Inference.CircuitResetWait
	}
	if other.Lexical.IndexDir != "" {
		c.Lexical.IndexDir = other.Lexical.IndexDir
	}
	if other.Vector.DataDir != "" {
		c.Vector.DataDir = other.Vector.DataDir
	}
	if other.Vector.DefaultDimensions != 0 {
		c.Vector.DefaultDimensions = other.Vector.DefaultDimensions
	}
	if other.Vector.CollectionCacheTTL != 0 {
		c.Vector.CollectionCacheTTL = other.Vector.CollectionCacheTTL
	}
	if other.Vector.HNSWM != 0 {
		c.Vector.HNSWM = other.Vector.HNSWM
	}
	if other.Vector.HNSWEfConstruction != 0 {
		c.Vector.HNSWEfConstruction = other.Vector.HNSWEfConstruction
	}
	if other.Vector.HNSWEfSearch != 0 {
		c.Vector.HNSWEfSearch = other.Vector.HNSWEfSearch
	}
	if other.Chunk.MaxLines != 0 {
		c.Chunk.MaxLines = other.Chunk.MaxLines
	}
	if other.Chunk.MinLines != 0 {
		c.Chunk.MinLines = other.Chunk.MinLines
	}
	if other.Chunk.OverlapPct != 0 {
		c.Chunk.OverlapPct = other.Chunk.OverlapPct
	}
	if other.Queue.DataDir != "" {
		c.Queue.DataDir = other.Queue.DataDir
	}
	if other.Queue.BaseBackoff != 0 {
		c.Queue.BaseBackoff = other.Queue.BaseBackoff
	}
	if other.Queue.MaxBackoff != 0 {
		c.Queue.MaxBackoff = other.Queue.MaxBackoff
	}
	if other.Queue.CompletedRetain != 0 {
		c.Queue.CompletedRetain = other.Queue.CompletedRetain
	}
	if other.Query.ClassifierCacheSize != 0 {
		c.Query.ClassifierCacheSize = other.Query.ClassifierCacheSize
	}
	if other.Query.CodeThreshold != 0 {
		c.Query.CodeThreshold = other.Query.CodeThreshold
	}
	if other.Query.NaturalThreshold != 0 {
		c.Query.NaturalThreshold = other.Query.NaturalThreshold
	}
	if other.Retrieve.FanoutTimeout != 0 {
		c.Retrieve.FanoutTimeout = other.Retrieve.FanoutTimeout
	}
	if other.Retrieve.CandidateK != 0 {
		c.Retrieve.CandidateK = other.Retrieve.CandidateK
	}
	if other.Fusion.RRFConstant != 0 {
		c.Fusion.RRFConstant = other.Fusion.RRFConstant
	}
	if other.Fusion.BM25Weight != 0 {
		c.Fusion.BM25Weight = other.Fusion.BM25Weight
	}
	if other.Fusion.VectorWeight != 0 {
		c.Fusion.VectorWeight = other.Fusion.VectorWeight
	}
	if other.Fusion.MaxWeightBoost != 0 {
		c.Fusion.MaxWeightBoost = other.Fusion.MaxWeightBoost
	}
	if other.Rerank.TopN != 0 {
		c.Rerank.TopN = other.Rerank.TopN
	}
	if other.Rerank.Timeout != 0 {
		c.Rerank.Timeout = other.Rerank.Timeout
	}
	if other.Rerank.MinResults != 0 {
		c.Rerank.MinResults = other.Rerank.MinResults
	}
	if other.Telemetry.RingSize != 0 {
		c.Telemetry.RingSize = other.Telemetry.RingSize
	}
	if other.Telemetry.ExportPath != "" {
		c.Telemetry.ExportPath = other.Telemetry.ExportPath
	}
	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
}

// applyEnvOverrides applies HYBRIDSEARCH_* environment overrides, the
// highest-precedence configuration source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HYBRIDSEARCH_BM25_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Fusion.BM25Weight = f
		}
	}
	if v := os.Getenv("HYBRIDSEARCH_VECTOR_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Fusion.VectorWeight = f
		}
	}
	if v := os.Getenv("HYBRIDSEARCH_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fusion.RRFConstant = n
		}
	}
	if v := os.Getenv("HYBRIDSEARCH_EMBED_ENDPOINT"); v != "" {
		c.Inference.EmbedEndpoint = v
	}
	if v := os.Getenv("HYBRIDSEARCH_RERANK_ENDPOINT"); v != "" {
		c.Inference.RerankEndpoint = v
	}
	if v := os.Getenv("HYBRIDSEARCH_RERANK_ENABLED"); v != "" {
		c.Rerank.Enabled = v != "false" && v != "0"
	}
}

// Validate checks configuration invariants (weights, thresholds, positivity).
func (c *Config) Validate() error {
	if c.Fusion.BM25Weight < 0 || c.Fusion.VectorWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if sum := c.Fusion.BM25Weight + c.Fusion.VectorWeight; sum > 0 && (sum < 0.99 || sum > 1.01) {
		return fmt.Errorf("fusion weights must sum to 1.0, got %.3f", sum)
	}
	if c.Fusion.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive")
	}
	if c.Query.CodeThreshold <= c.Query.NaturalThreshold {
		return fmt.Errorf("query.code_threshold must exceed query.natural_threshold")
	}
	if c.Vector.DefaultDimensions <= 0 {
		return fmt.Errorf("vector.default_dimensions must be positive")
	}
	if c.Chunk.MinLines <= 0 || c.Chunk.MaxLines < c.Chunk.MinLines {
		return fmt.Errorf("chunk.max_lines must be >= chunk.min_lines > 0")
	}
	if c.Queue.BaseBackoff <= 0 || c.Queue.MaxBackoff < c.Queue.BaseBackoff {
		return fmt.Errorf("queue.max_backoff must be >= queue.base_backoff > 0")
	}
	return nil
}

// WriteYAML atomically writes the configuration to path (write-temp-then-rename).
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}
	return nil
}
