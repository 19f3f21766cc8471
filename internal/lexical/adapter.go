// Package lexical implements the BM25 keyword-search adapter (C3): one
// Bleve index per store, opened lazily on first write, with path-substring
// and language-filtered search.
package lexical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"

	engineerrors "github.com/hybridsearch/engine/internal/errors"
	"github.com/hybridsearch/engine/internal/model"
)

const (
	codeTokenizerName = "hybridsearch_code_tokenizer"
	codeStopFilterName = "hybridsearch_code_stop"
	codeAnalyzerName    = "hybridsearch_code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(codeStopFilterName, codeStopFilterConstructor)
}

// SearchHit is one lexical match.
type SearchHit struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// Stats summarizes one store's lexical index.
type Stats struct {
	DocumentCount int
}

// SearchOptions narrows a lexical search.
type SearchOptions struct {
	PathPrefix string
	Language   string
}

// Adapter manages one Bleve index per store under baseDir, creating a
// store's index lazily on its first successful write. Searching a store
// with no on-disk index returns an empty result set rather than an error.
type Adapter struct {
	baseDir string

	mu      sync.RWMutex
	indexes map[string]bleve.Index
}

// NewAdapter creates an Adapter rooted at baseDir (one subdirectory per
// store).
func NewAdapter(baseDir string) *Adapter {
	return &Adapter{
		baseDir: baseDir,
		indexes: make(map[string]bleve.Index),
	}
}

func (a *Adapter) storePath(store string) string {
	return filepath.Join(a.baseDir, store, "bleve")
}

// hasIndex reports whether store's index already exists, without opening
// or creating it.
func (a *Adapter) hasIndex(store string) bool {
	a.mu.RLock()
	_, open := a.indexes[store]
	a.mu.RUnlock()
	if open {
		return true
	}
	_, err := os.Stat(filepath.Join(a.storePath(store), "index_meta.json"))
	return err == nil
}

func (a *Adapter) openOrCreate(store string) (bleve.Index, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if idx, ok := a.indexes[store]; ok {
		return idx, nil
	}

	path := a.storePath(store)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		indexMapping, mappingErr := buildMapping()
		if mappingErr != nil {
			return nil, mappingErr
		}
		idx, err = bleve.New(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("open/create bleve index for store %q: %w", store, err)
	}

	a.indexes[store] = idx
	return idx, nil
}

func (a *Adapter) openExisting(store string) (bleve.Index, bool, error) {
	a.mu.RLock()
	if idx, ok := a.indexes[store]; ok {
		a.mu.RUnlock()
		return idx, true, nil
	}
	a.mu.RUnlock()

	if !a.hasIndex(store) {
		return nil, false, nil
	}

	idx, err := a.openOrCreate(store)
	if err != nil {
		return nil, false, err
	}
	return idx, true, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			codeStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add code analyzer: %w", err)
	}
	im.DefaultAnalyzer = codeAnalyzerName

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = codeAnalyzerName
	docMapping.AddFieldMappingsAt("content", contentField)

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("path", keywordField)
	docMapping.AddFieldMappingsAt("language", keywordField)

	im.DefaultMapping = docMapping
	return im, nil
}

// indexDoc is the document shape stored in Bleve.
type indexDoc struct {
	Content  string `json:"content"`
	Path     string `json:"path"`
	Language string `json:"language"`
}

// Index writes chunks into store's lexical index, creating the index on
// this, its first successful write.
func (a *Adapter) Index(ctx context.Context, store string, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	idx, err := a.openOrCreate(store)
	if err != nil {
		return engineerrors.UpstreamWrap("lexical", fmt.Errorf("open index: %w", err))
	}

	batch := idx.NewBatch()
	for _, c := range chunks {
		doc := indexDoc{Content: c.Content, Path: c.Path, Language: c.Language}
		if err := batch.Index(c.DocID, doc); err != nil {
			return engineerrors.UpstreamWrap("lexical", fmt.Errorf("stage document: %w", err))
		}
	}

	if err := idx.Batch(batch); err != nil {
		return engineerrors.UpstreamWrap("lexical", fmt.Errorf("commit batch: %w", err))
	}
	return nil
}

// Search runs a BM25 match query against store, optionally narrowed to
// paths containing opts.PathPrefix and/or to a language. A store with no index returns an empty
// slice.
func (a *Adapter) Search(ctx context.Context, store, queryStr string, topK int, opts SearchOptions) ([]SearchHit, error) {
	if strings.TrimSpace(queryStr) == "" {
		return []SearchHit{}, nil
	}

	idx, ok, err := a.openExisting(store)
	if err != nil {
		return nil, engineerrors.UpstreamWrap("lexical", fmt.Errorf("open index: %w", err))
	}
	if !ok {
		return []SearchHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	query := bleve.Query(matchQuery)
	conjuncts := []bleve.Query{matchQuery}
	if opts.PathPrefix != "" {
		pq := bleve.NewWildcardQuery("*" + opts.PathPrefix + "*")
		pq.SetField("path")
		conjuncts = append(conjuncts, pq)
	}
	if opts.Language != "" {
		lq := bleve.NewTermQuery(opts.Language)
		lq.SetField("language")
		conjuncts = append(conjuncts, lq)
	}
	if len(conjuncts) > 1 {
		query = bleve.NewConjunctionQuery(conjuncts...)
	}

	req := bleve.NewSearchRequest(query)
	req.Size = topK
	req.IncludeLocations = true

	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, engineerrors.UpstreamWrap("lexical", fmt.Errorf("search: %w", err))
	}

	hits := make([]SearchHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, SearchHit{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return hits, nil
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locs := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locs {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	return out
}

// DeleteByDocIDs removes the given doc ids from store's index. A no-op if
// the store has no index yet.
func (a *Adapter) DeleteByDocIDs(ctx context.Context, store string, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	idx, ok, err := a.openExisting(store)
	if err != nil {
		return engineerrors.UpstreamWrap("lexical", fmt.Errorf("open index: %w", err))
	}
	if !ok {
		return nil
	}

	batch := idx.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	if err := idx.Batch(batch); err != nil {
		return engineerrors.UpstreamWrap("lexical", fmt.Errorf("delete batch: %w", err))
	}
	return nil
}

// DeleteByPath removes every chunk belonging to path. Chunk doc_ids embed
// their owning path, so this first resolves matching ids then deletes them.
func (a *Adapter) DeleteByPath(ctx context.Context, store, path string) error {
	idx, ok, err := a.openExisting(store)
	if err != nil {
		return engineerrors.UpstreamWrap("lexical", fmt.Errorf("open index: %w", err))
	}
	if !ok {
		return nil
	}

	pq := bleve.NewTermQuery(path)
	pq.SetField("path")
	req := bleve.NewSearchRequest(pq)
	docCount, _ := idx.DocCount()
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return engineerrors.UpstreamWrap("lexical", fmt.Errorf("resolve path for delete: %w", err))
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return a.DeleteByDocIDs(ctx, store, ids)
}

// Stats returns index statistics for store. A store with no index returns
// a zero-valued Stats.
func (a *Adapter) Stats(ctx context.Context, store string) (Stats, error) {
	idx, ok, err := a.openExisting(store)
	if err != nil {
		return Stats{}, engineerrors.UpstreamWrap("lexical", fmt.Errorf("open index: %w", err))
	}
	if !ok {
		return Stats{}, nil
	}
	count, err := idx.DocCount()
	if err != nil {
		return Stats{}, engineerrors.UpstreamWrap("lexical", fmt.Errorf("doc count: %w", err))
	}
	return Stats{DocumentCount: int(count)}, nil
}

// DropStore deletes a store's lexical index entirely, closing it first if
// open.
func (a *Adapter) DropStore(store string) error {
	a.mu.Lock()
	if idx, ok := a.indexes[store]; ok {
		_ = idx.Close()
		delete(a.indexes, store)
	}
	a.mu.Unlock()

	path := a.storePath(store)
	if err := os.RemoveAll(path); err != nil {
		return engineerrors.UpstreamWrap("lexical", fmt.Errorf("drop store: %w", err))
	}
	return nil
}

// Close closes every open index.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for name, idx := range a.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.indexes, name)
	}
	return firstErr
}

func codeTokenizerConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	return &codeTokenizer{}, nil
}

type codeTokenizer struct{}

func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizeCode(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), strings.ToLower(token))
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

func codeStopFilterConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.TokenFilter, error) {
	return &codeStopFilter{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

type codeStopFilter struct {
	stopWords map[string]struct{}
}

func (f *codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
