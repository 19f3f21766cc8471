// Package tracker implements per-store file tracking: it remembers which
// paths have been indexed, under what content hash, and which chunk ids
// they produced, so the index pipeline can classify a submitted file as
// new, changed, or unchanged without re-reading the lexical or vector
// stores.
package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hybridsearch/engine/internal/model"
)

// TrackedFile is the persisted record for one file within a store.
type TrackedFile = model.TrackedFile

// document is the on-disk shape: one file per store.
type document struct {
	Store       string                  `json:"store"`
	Files       map[string]*TrackedFile `json:"files"`
	LastUpdated time.Time               `json:"last_updated"`
}

// Status classifies a file relative to what's currently tracked.
type Status int

const (
	StatusNew Status = iota
	StatusChanged
	StatusUnchanged
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusChanged:
		return "changed"
	case StatusUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Tracker owns the tracked-file document for a single store. The C7 job
// queue worker is the sole writer; reads may happen concurrently with a
// write in flight and observe either the pre- or post-write state.
type Tracker struct {
	mu   sync.RWMutex
	dir  string
	doc  *document
}

// New creates a Tracker persisting into dir/{store}.json. It does not load
// from disk; call Load before use.
func New(dir, store string) *Tracker {
	return &Tracker{
		dir: dir,
		doc: &document{Store: store, Files: make(map[string]*TrackedFile)},
	}
}

func (t *Tracker) path() string {
	return filepath.Join(t.dir, t.doc.Store+".json")
}

// Load reads the persisted document, if any. A missing file is not an
// error: the tracker starts empty.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read tracker file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse tracker file: %w", err)
	}
	if doc.Files == nil {
		doc.Files = make(map[string]*TrackedFile)
	}
	t.doc = &doc
	return nil
}

// Save persists the document atomically: write to a temp file in the same
// directory, then rename over the target.
func (t *Tracker) Save() error {
	t.mu.RLock()
	t.doc.LastUpdated = time.Now()
	data, err := json.MarshalIndent(t.doc, "", "  ")
	t.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal tracker document: %w", err)
	}

	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return fmt.Errorf("create tracker dir: %w", err)
	}

	target := t.path()
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write tracker temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tracker file: %w", err)
	}
	return nil
}

// HashContent returns the first 16 hex characters of the content's SHA-256
// digest, used as the stable change-detection fingerprint.
func HashContent(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])[:16]
}

// CheckFiles classifies each path against the current tracked state,
// without mutating it. contents must align positionally with paths.
func (t *Tracker) CheckFiles(paths []string, contents [][]byte) map[string]Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]Status, len(paths))
	for i, p := range paths {
		hash := HashContent(contents[i])
		existing, ok := t.doc.Files[p]
		switch {
		case !ok:
			result[p] = StatusNew
		case existing.Hash != hash:
			result[p] = StatusChanged
		default:
			result[p] = StatusUnchanged
		}
	}
	return result
}

// Track records path as indexed under content's hash, with the given chunk
// ids. Callers persist via Save once the underlying writes have committed.
func (t *Tracker) Track(path string, content []byte, chunkIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc.Files[path] = &TrackedFile{
		Path:      path,
		Hash:      HashContent(content),
		Size:      int64(len(content)),
		IndexedAt: time.Now(),
		ChunkIDs:  chunkIDs,
	}
}

// Untrack removes path and returns the chunk ids it previously owned, or
// nil if the path was not tracked.
func (t *Tracker) Untrack(path string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.doc.Files[path]
	if !ok {
		return nil
	}
	delete(t.doc.Files, path)
	return existing.ChunkIDs
}

// UntrackByPrefix removes every tracked path starting with prefix and
// returns the union of their chunk ids.
func (t *Tracker) UntrackByPrefix(prefix string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var chunkIDs []string
	for path, tf := range t.doc.Files {
		if hasPrefix(path, prefix) {
			chunkIDs = append(chunkIDs, tf.ChunkIDs...)
			delete(t.doc.Files, path)
		}
	}
	return chunkIDs
}

// FindDeleted returns tracked paths absent from currentPaths.
func (t *Tracker) FindDeleted(currentPaths []string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	current := make(map[string]struct{}, len(currentPaths))
	for _, p := range currentPaths {
		current[p] = struct{}{}
	}

	var deleted []string
	for path := range t.doc.Files {
		if _, ok := current[path]; !ok {
			deleted = append(deleted, path)
		}
	}
	return deleted
}

// Get returns the tracked record for path, if any.
func (t *Tracker) Get(path string) (*TrackedFile, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tf, ok := t.doc.Files[path]
	return tf, ok
}

// Len returns the number of currently tracked files.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.doc.Files)
}

// ChunkCount returns the total number of chunk ids owned across every
// tracked file, for cross-store consistency checks.
func (t *Tracker) ChunkCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, tf := range t.doc.Files {
		n += len(tf.ChunkIDs)
	}
	return n
}

// Clear removes all tracked files for this store (used by reindex).
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.doc.Files = make(map[string]*TrackedFile)
}

func hasPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}
