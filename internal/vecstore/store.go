// Package vecstore defines the vector store boundary: persisting
// (id, vector, metadata, document) entries and answering similarity queries
// restricted by a metadata filter. Concrete backends (Qdrant, in-memory)
// satisfy the Store interface so the pipeline and query engine never depend
// on a specific engine.
package vecstore

import (
	"context"
	"fmt"
	"sort"
)

// Entry is the persisted unit: the original document text plus its embedding
// and the flat metadata used for filtering. Entries are created during
// ingestion and overwritten on re-ingestion of the same id; they are never
// implicitly deleted.
type Entry struct {
	// ID is the stable entry identifier (the record key).
	ID string `json:"id"`

	// Vector is the embedding of Document. All entries in one store must
	// share the same dimensionality.
	Vector []float32 `json:"vector"`

	// Metadata holds flat scalar values (string, number, bool) evaluated by
	// filter expressions.
	Metadata map[string]any `json:"metadata"`

	// Document is the original embedded text, returned with query results.
	Document string `json:"document"`
}

// Result pairs an entry with its similarity score for one query.
type Result struct {
	Entry
	// Score is the cosine similarity between the query vector and the entry
	// vector. Higher is more similar.
	Score float32
}

// Store is the interface for persisting and searching entries.
// Implementations must be safe to call from multiple goroutines: concurrent
// upserts of overlapping ids resolve last-writer-wins, and queries may
// observe either the pre- or post-upsert state of an in-flight write, never
// a corrupted mix.
type Store interface {
	// Upsert writes or overwrites entries by id. It is atomic per entry —
	// a failure partway through a batch never corrupts entries that already
	// succeeded — but not atomic across the whole batch.
	Upsert(ctx context.Context, entries []Entry) error

	// Query returns the top-k entries by cosine similarity to vector among
	// those whose metadata satisfies filter (nil filter matches everything).
	// Filtering happens before ranking, so a narrow filter still yields k
	// results when k matching entries exist. Ties break by id ascending.
	// k must be > 0. An empty result set is not an error.
	Query(ctx context.Context, vector []float32, filter Filter, k int) ([]Result, error)

	// Count returns the number of entries whose metadata satisfies filter
	// (nil filter counts everything).
	Count(ctx context.Context, filter Filter) (uint64, error)

	// Close releases any resources held by the store.
	Close() error
}

// sortResults orders results by score descending, breaking ties by id
// ascending. Every backend runs its results through this before returning,
// so equal-score ordering never depends on engine internals.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})
}

// StorageError reports a persistence-layer I/O failure. It is not retried
// automatically; the affected operation fails as a whole.
type StorageError struct {
	// Op is the failing operation ("upsert", "query", "count", "open", "snapshot").
	Op string
	// Err is the underlying cause.
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("vecstore: %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FilterSyntaxError reports a malformed filter expression. It is surfaced
// immediately, before the expression reaches any store backend.
type FilterSyntaxError struct {
	// Reason describes what is wrong with the expression.
	Reason string
}

func (e *FilterSyntaxError) Error() string {
	return fmt.Sprintf("vecstore: invalid filter: %s", e.Reason)
}
