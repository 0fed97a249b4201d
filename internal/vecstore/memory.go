package vecstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryStore is a Store backed by an in-memory map, optionally snapshotted
// to a JSON file so its contents survive process restarts. It is the local
// (no external service) backend and the test double for the Qdrant store.
//
// Reads take a shared lock and writes an exclusive one, so a concurrent
// query observes either the pre- or post-upsert state of a batch, never a
// torn entry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	// dim is the vector dimensionality fixed by the first upserted entry.
	dim int
	// path is the snapshot file; empty for a purely in-memory store.
	path string
}

// snapshot is the on-disk JSON layout.
type snapshot struct {
	Dimension int     `json:"dimension"`
	Entries   []Entry `json:"entries"`
}

// NewMemoryStore creates an empty store with no persistence.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// OpenMemoryStore opens a store persisted at path, loading the previous
// snapshot when one exists. Every successful Upsert rewrites the snapshot
// atomically (write temp file, then rename).
func OpenMemoryStore(path string) (*MemoryStore, error) {
	s := &MemoryStore{entries: make(map[string]Entry), path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("corrupt snapshot %s: %w", path, err)}
	}
	s.dim = snap.Dimension
	for _, e := range snap.Entries {
		s.entries[e.ID] = e
	}
	return s, nil
}

// Upsert writes or overwrites entries by id. Dimensionality is fixed by the
// first entry ever written; mixing dimensionalities is invalid.
func (s *MemoryStore) Upsert(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.ID == "" {
			return &StorageError{Op: "upsert", Err: fmt.Errorf("entry with empty id")}
		}
		if len(e.Vector) == 0 {
			return &StorageError{Op: "upsert", Err: fmt.Errorf("entry %s has no vector", e.ID)}
		}
		if s.dim == 0 {
			s.dim = len(e.Vector)
		}
		if len(e.Vector) != s.dim {
			return &StorageError{
				Op:  "upsert",
				Err: fmt.Errorf("entry %s has dimension %d, store holds %d", e.ID, len(e.Vector), s.dim),
			}
		}
		s.entries[e.ID] = e
	}

	return s.flushLocked()
}

// Query scores every entry passing the filter and returns the top k.
func (s *MemoryStore) Query(ctx context.Context, vector []float32, filter Filter, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("vecstore: k must be > 0, got %d", k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim != 0 && len(vector) != s.dim {
		return nil, fmt.Errorf("vecstore: query vector has dimension %d, store holds %d", len(vector), s.dim)
	}

	results := make([]Result, 0, k)
	for _, e := range s.entries {
		if filter != nil && !filter.Matches(e.Metadata) {
			continue
		}
		results = append(results, Result{Entry: e, Score: cosine(vector, e.Vector)})
	}

	sortResults(results)

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns how many entries satisfy the filter.
func (s *MemoryStore) Count(ctx context.Context, filter Filter) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n uint64
	for _, e := range s.entries {
		if filter == nil || filter.Matches(e.Metadata) {
			n++
		}
	}
	return n, nil
}

// Close flushes the snapshot one final time.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// flushLocked writes the snapshot atomically. Callers must hold s.mu.
func (s *MemoryStore) flushLocked() error {
	if s.path == "" {
		return nil
	}

	snap := snapshot{Dimension: s.dim, Entries: make([]Entry, 0, len(s.entries))}
	for _, e := range s.entries {
		snap.Entries = append(snap.Entries, e)
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].ID < snap.Entries[j].ID })

	data, err := json.Marshal(snap)
	if err != nil {
		return &StorageError{Op: "snapshot", Err: err}
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &StorageError{Op: "snapshot", Err: err}
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &StorageError{Op: "snapshot", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &StorageError{Op: "snapshot", Err: err}
	}
	return nil
}

// cosine returns the cosine similarity of two equal-length vectors.
// A zero vector yields similarity 0.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
