package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hybridsearch/engine/internal/cache"
	engineerrors "github.com/hybridsearch/engine/internal/errors"
)

const component = "inference"

// Config tunes the client's endpoints, timeouts, and connection pool.
type Config struct {
	EmbedEndpoint      string
	RerankEndpoint     string
	HealthEndpoint     string
	EmbedIndexTimeout  time.Duration
	EmbedQueryTimeout  time.Duration
	RerankQueryTimeout time.Duration
	MaxIdleConns       int
	CircuitMaxFails    int
	CircuitResetWait   time.Duration
}

// Client is the HTTP client for the external embed/rerank service. It pools
// connections with no artificial per-host socket cap beyond the configured
// idle-connection limit, and schedules requests FIFO via the stdlib
// transport.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	cfg        Config
	logger     *slog.Logger
	breaker    *engineerrors.CircuitBreaker

	denseCache  *cache.Cache[string, []float32]
	sparseCache *cache.Cache[string, SparseVector]
}

// New creates a Client with connection pooling sized for keep-alive reuse
// and a circuit breaker guarding the embed/rerank endpoints.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 64
	}
	if cfg.EmbedIndexTimeout <= 0 {
		cfg.EmbedIndexTimeout = defaultTimeouts.embedIndex
	}
	if cfg.EmbedQueryTimeout <= 0 {
		cfg.EmbedQueryTimeout = defaultTimeouts.embedQuery
	}
	if cfg.RerankQueryTimeout <= 0 {
		cfg.RerankQueryTimeout = defaultTimeouts.rerank
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		transport:  transport,
		cfg:        cfg,
		logger:     logger.With("component", component),
		breaker: engineerrors.NewCircuitBreaker(component,
			engineerrors.WithMaxFailures(orDefault(cfg.CircuitMaxFails, 5)),
			engineerrors.WithResetTimeout(orDefaultDuration(cfg.CircuitResetWait, 30*time.Second)),
		),
		denseCache:  cache.New[string, []float32](2000, 30*time.Minute),
		sparseCache: cache.New[string, SparseVector](2000, 30*time.Minute),
	}
}

// WithCaches overrides the client's embedding caches, e.g. to share
// configured sizes/TTLs across the engine's C1 cache tier.
func (c *Client) WithCaches(dense *cache.Cache[string, []float32], sparse *cache.Cache[string, SparseVector]) *Client {
	c.denseCache = dense
	c.sparseCache = sparse
	return c
}

// Close releases idle connections held by the client's transport.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// EmbedDense embeds texts and returns only their dense vectors. indexing
// selects the 300s batch timeout; otherwise the 30s query timeout applies.
func (c *Client) EmbedDense(ctx context.Context, texts []string, indexing bool) ([][]float32, error) {
	results, err := c.embed(ctx, texts, EmbedDense, indexing)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(results))
	for i, r := range results {
		out[i] = r.Dense
	}
	return out, nil
}

// EmbedSparse embeds texts and returns only their sparse vectors.
func (c *Client) EmbedSparse(ctx context.Context, texts []string, indexing bool) ([]SparseVector, error) {
	results, err := c.embed(ctx, texts, EmbedSparse, indexing)
	if err != nil {
		return nil, err
	}
	out := make([]SparseVector, len(results))
	for i, r := range results {
		out[i] = r.Sparse
	}
	return out, nil
}

// EmbedBoth embeds texts and returns both dense and sparse vectors.
func (c *Client) EmbedBoth(ctx context.Context, texts []string, indexing bool) ([]EmbedResult, error) {
	return c.embed(ctx, texts, EmbedBoth, indexing)
}

func (c *Client) embed(ctx context.Context, texts []string, mode EmbedMode, indexing bool) ([]EmbedResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([]EmbedResult, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := cacheKey(mode, text)
		dense, sparse, hit := c.lookupCache(mode, key)
		if hit {
			results[i] = EmbedResult{Dense: dense, Sparse: sparse}
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	timeout := c.cfg.EmbedQueryTimeout
	if indexing {
		timeout = c.cfg.EmbedIndexTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetched, err := c.doEmbed(reqCtx, missTexts, mode)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missTexts) {
		return nil, engineerrors.UpstreamWrap(component, fmt.Errorf("embed response count mismatch: requested %d, got %d", len(missTexts), len(fetched)))
	}

	for j, idx := range missIdx {
		results[idx] = fetched[j]
		key := cacheKey(mode, texts[idx])
		c.storeCache(mode, key, fetched[j])
	}

	return results, nil
}

func (c *Client) lookupCache(mode EmbedMode, key string) ([]float32, SparseVector, bool) {
	switch mode {
	case EmbedDense:
		if v, ok := c.denseCache.Get(key); ok {
			return v, nil, true
		}
	case EmbedSparse:
		if v, ok := c.sparseCache.Get(key); ok {
			return nil, v, true
		}
	case EmbedBoth:
		dense, denseOK := c.denseCache.Get(key)
		sparse, sparseOK := c.sparseCache.Get(key)
		if denseOK && sparseOK {
			return dense, sparse, true
		}
	}
	return nil, nil, false
}

func (c *Client) storeCache(mode EmbedMode, key string, result EmbedResult) {
	switch mode {
	case EmbedDense:
		c.denseCache.Set(key, result.Dense)
	case EmbedSparse:
		c.sparseCache.Set(key, result.Sparse)
	case EmbedBoth:
		c.denseCache.Set(key, result.Dense)
		c.sparseCache.Set(key, result.Sparse)
	}
}

func cacheKey(mode EmbedMode, text string) string {
	return fmt.Sprintf("%d:%s", mode, text)
}

func (c *Client) doEmbed(ctx context.Context, texts []string, mode EmbedMode) ([]EmbedResult, error) {
	reqBody := embedRequest{
		Texts:  texts,
		Dense:  mode == EmbedDense || mode == EmbedBoth,
		Sparse: mode == EmbedSparse || mode == EmbedBoth,
	}

	var resp embedResponse
	err := c.breaker.Execute(func() error {
		return c.postJSON(ctx, c.cfg.EmbedEndpoint, reqBody, &resp)
	})
	if err != nil {
		if err == engineerrors.ErrCircuitOpen {
			return nil, engineerrors.New(engineerrors.Upstream, component, "embed circuit open", err)
		}
		return nil, engineerrors.UpstreamWrap(component, err)
	}

	out := make([]EmbedResult, len(resp.Embeddings))
	for i, item := range resp.Embeddings {
		out[i] = EmbedResult{Dense: item.Dense, Sparse: SparseVector(item.Sparse)}
	}
	return out, nil
}

// Rerank scores documents against query via the cross-encoder endpoint,
// bounded by the configured rerank timeout (default 100ms). Callers needing
// a guaranteed, never-failing result should use RerankWithFallback instead.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RerankQueryTimeout)
	defer cancel()

	var resp rerankResponse
	err := c.breaker.Execute(func() error {
		return c.postJSON(reqCtx, c.cfg.RerankEndpoint, rerankRequest{Query: query, Documents: documents, TopK: topK}, &resp)
	})
	if err != nil {
		if err == engineerrors.ErrCircuitOpen {
			return nil, engineerrors.New(engineerrors.Upstream, component, "rerank circuit open", err)
		}
		return nil, engineerrors.UpstreamWrap(component, err)
	}

	out := make([]RerankResult, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = RerankResult{Index: r.Index, Score: r.Score}
	}
	return out, nil
}

// RerankWithFallback calls Rerank and, on any error or timeout, fails open:
// it returns documents in their original order with monotonically
// decreasing synthetic scores so downstream ranking is unaffected by an
// unavailable reranker.
func (c *Client) RerankWithFallback(ctx context.Context, query string, documents []string, topK int) []RerankResult {
	results, err := c.Rerank(ctx, query, documents, topK)
	if err == nil && len(results) > 0 {
		return results
	}
	if err != nil {
		c.logger.Warn("rerank failed, falling back to original order", "error", err)
	}

	out := make([]RerankResult, len(documents))
	for i := range documents {
		out[i] = RerankResult{Index: i, Score: 1.0 - float64(i)*0.0001}
	}
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}

// Health checks the inference service's reachability.
func (c *Client) Health(ctx context.Context) HealthStatus {
	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeouts.health)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.HealthEndpoint, nil)
	if err != nil {
		return HealthStatus{Healthy: false, Message: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{Healthy: false, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return HealthStatus{Healthy: false, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return HealthStatus{Healthy: false, Message: err.Error()}
	}
	return HealthStatus{Healthy: health.Status == "ok" || health.Status == "healthy", Message: health.Status}
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
