// Package search implements semantic retrieval over the ingested catalog.
// A query is embedded with the same client used at ingest time and matched
// against the vector store, optionally narrowed by a metadata filter that is
// applied before similarity ranking.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/progdex/progdex/internal/catalog"
	"github.com/progdex/progdex/internal/embedder"
	"github.com/progdex/progdex/internal/metrics"
	"github.com/progdex/progdex/internal/vecstore"
)

// DefaultK is the number of results returned when the caller does not ask for
// a specific count.
const DefaultK = 5

// Engine answers semantic queries against a vector store.
type Engine struct {
	client   *embedder.Client
	store    vecstore.Store
	defaultK int

	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine constructs an Engine. log and m may be nil.
func NewEngine(client *embedder.Client, store vecstore.Store, log *slog.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		client:   client,
		store:    store,
		defaultK: DefaultK,
		log:      log,
		metrics:  m,
	}
}

// Search embeds the query and returns the k most similar entries, most
// similar first. filter, when non-nil, restricts candidates before ranking
// and is handed to the store unmodified. k <= 0 selects the default count.
//
// A blank query fails with *catalog.ValidationError before any provider
// call. An empty result set is a valid answer, not an error.
func (e *Engine) Search(ctx context.Context, query string, filter vecstore.Filter, k int) ([]vecstore.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &catalog.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if k <= 0 {
		k = e.defaultK
	}

	start := time.Now()
	vecs, err := e.client.EmbedBatch(ctx, []string{query})
	if err != nil {
		e.metrics.Search(metrics.OutcomeError, time.Since(start))
		return nil, err
	}

	results, err := e.store.Query(ctx, vecs[0], filter, k)
	if err != nil {
		e.metrics.Search(metrics.OutcomeError, time.Since(start))
		return nil, err
	}

	e.metrics.Search(metrics.OutcomeOK, time.Since(start))
	e.log.Debug("search: answered",
		slog.Int("k", k),
		slog.Int("results", len(results)),
		slog.Bool("filtered", filter != nil),
		slog.Duration("took", time.Since(start)),
	)
	return results, nil
}

// ParseFilter exposes the store's filter dialect to callers that receive
// filters as JSON, such as the CLI.
func ParseFilter(raw string) (vecstore.Filter, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return vecstore.ParseFilter([]byte(raw))
}
