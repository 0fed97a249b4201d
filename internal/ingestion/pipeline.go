// Package ingestion implements the catalog ingestion pipeline.
// It builds a searchable document per catalog record, embeds documents in
// batches, and upserts the results into the vector store. Re-running the
// pipeline over the same records is idempotent: entries are keyed by record
// id, and an optional fingerprint ledger skips records whose document text is
// unchanged since the last run.
// This pipeline is invoked by the `progdex ingest` CLI command.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/progdex/progdex/internal/catalog"
	"github.com/progdex/progdex/internal/embedder"
	"github.com/progdex/progdex/internal/ledger"
	"github.com/progdex/progdex/internal/metrics"
	"github.com/progdex/progdex/internal/vecstore"
)

// defaultConcurrency bounds how many embed+upsert batches run at once.
const defaultConcurrency = 4

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Concurrency is the number of batches processed in parallel.
	// Defaults to 4 if zero.
	Concurrency int

	// SkipUnchanged enables fingerprint-based skipping. It has no effect
	// when the pipeline has no ledger.
	SkipUnchanged bool
}

// BatchFailure records one failed unit of work. Batch is the zero-based batch
// index, or -1 for a record that failed during document building. IDs are the
// record ids the failure covers; none of them were written to the store in
// this run.
type BatchFailure struct {
	Batch int
	IDs   []string
	Err   error
}

// Report summarises one pipeline run. A run with Failed entries is partial,
// not void: every id outside Failed was either upserted or skipped, and a
// subsequent run over the same records will redo only the failed ones.
type Report struct {
	// Ingested is the number of records embedded and upserted.
	Ingested int
	// Skipped is the number of records left untouched because their
	// document text matched the ledger fingerprint.
	Skipped int
	// Failed lists the build- and batch-level failures, ordered by batch.
	Failed []BatchFailure
}

// Ok reports whether the run completed without any failures.
func (r *Report) Ok() bool { return len(r.Failed) == 0 }

// Pipeline orchestrates the build → embed → upsert flow for catalog records.
type Pipeline struct {
	// client converts documents into dense vector embeddings in batches.
	client *embedder.Client

	// store persists the embedded entries.
	store vecstore.Store

	// ledger tracks content fingerprints for skip-if-unchanged. May be nil.
	ledger ledger.Ledger

	// cfg holds the resolved pipeline configuration.
	cfg Config

	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewPipeline constructs a Pipeline from the provided dependencies.
// led, log, and m may be nil.
func NewPipeline(client *embedder.Client, store vecstore.Store, led ledger.Ledger, cfg Config, log *slog.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("ingestion: embedder client must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		client:  client,
		store:   store,
		ledger:  led,
		cfg:     cfg,
		log:     log,
		metrics: m,
	}, nil
}

// task is one record that survived building and skipping, ready to embed.
type task struct {
	built catalog.Built
	fp    string
}

// Ingest runs the pipeline over all records and returns a per-run Report.
// Individual record and batch failures are collected in the report rather
// than aborting the run; Ingest itself returns an error only when the run
// cannot proceed at all (context cancelled, ledger unavailable).
func (p *Pipeline) Ingest(ctx context.Context, records []catalog.Record) (*Report, error) {
	report := &Report{}

	tasks := make([]task, 0, len(records))
	for _, rec := range records {
		built, err := catalog.Build(rec)
		if err != nil {
			report.Failed = append(report.Failed, BatchFailure{
				Batch: -1,
				IDs:   []string{rec.Key},
				Err:   err,
			})
			p.metrics.IngestRecords(metrics.OutcomeError, 1)
			continue
		}

		fp := fingerprintOf(built)
		if p.cfg.SkipUnchanged && p.ledger != nil {
			prev, err := p.ledger.Get(ctx, built.ID)
			if err != nil {
				return nil, fmt.Errorf("ingestion: ledger lookup for %s: %w", built.ID, err)
			}
			if prev == fp {
				report.Skipped++
				p.metrics.IngestRecords(metrics.OutcomeSkipped, 1)
				continue
			}
		}
		tasks = append(tasks, task{built: built, fp: fp})
	}

	if len(tasks) == 0 {
		return report, nil
	}

	spans := embedder.Partition(len(tasks), p.client.BatchSize())
	p.log.Info("ingestion: starting",
		slog.Int("records", len(records)),
		slog.Int("to_embed", len(tasks)),
		slog.Int("batches", len(spans)),
		slog.Int("skipped", report.Skipped),
	)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.cfg.Concurrency)
	)
	for i, span := range spans {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(batch int, batchTasks []task) {
			defer wg.Done()
			defer func() { <-sem }()

			err := p.processBatch(ctx, batch, batchTasks)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, BatchFailure{
					Batch: batch,
					IDs:   taskIDs(batchTasks),
					Err:   err,
				})
				p.metrics.IngestBatch(metrics.OutcomeError)
				p.metrics.IngestRecords(metrics.OutcomeError, len(batchTasks))
				return
			}
			report.Ingested += len(batchTasks)
			p.metrics.IngestBatch(metrics.OutcomeOK)
			p.metrics.IngestRecords(metrics.OutcomeOK, len(batchTasks))
		}(i, tasks[span.Start:span.End])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].Batch < report.Failed[j].Batch
	})
	for _, f := range report.Failed {
		p.log.Warn("ingestion: batch failed",
			slog.Int("batch", f.Batch),
			slog.Int("records", len(f.IDs)),
			slog.String("error", f.Err.Error()),
		)
	}
	p.log.Info("ingestion: done",
		slog.Int("ingested", report.Ingested),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed_batches", len(report.Failed)),
	)
	return report, nil
}

// processBatch embeds one batch of documents and upserts the resulting
// entries. The ledger is updated only after a successful upsert, so a failed
// batch is retried in full on the next run.
func (p *Pipeline) processBatch(ctx context.Context, batch int, tasks []task) error {
	texts := make([]string, len(tasks))
	for i, t := range tasks {
		texts[i] = t.built.Document
	}

	vecs, err := p.client.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	entries := make([]vecstore.Entry, len(tasks))
	for i, t := range tasks {
		entries[i] = vecstore.Entry{
			ID:       t.built.ID,
			Vector:   vecs[i],
			Metadata: t.built.Metadata,
			Document: t.built.Document,
		}
	}
	if err := p.store.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	if p.ledger != nil {
		for _, t := range tasks {
			if err := p.ledger.Put(ctx, t.built.ID, t.fp); err != nil {
				// The entry is already stored; a stale ledger row only
				// costs a redundant re-embed next run.
				p.log.Warn("ingestion: ledger update failed",
					slog.Int("batch", batch),
					slog.String("id", t.built.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}

// fingerprintOf covers both the document text and the filter metadata, since
// boolean and numeric attributes can change without touching the text.
// json.Marshal emits map keys sorted, so the fingerprint is canonical.
func fingerprintOf(b catalog.Built) string {
	meta, _ := json.Marshal(b.Metadata)
	return ledger.Fingerprint(b.Document + "\n" + string(meta))
}

func taskIDs(tasks []task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.built.ID
	}
	return ids
}

// FailedIDs flattens the ids of all failures in the report, for callers that
// want to retry just those records.
func (r *Report) FailedIDs() []string {
	var ids []string
	for _, f := range r.Failed {
		ids = append(ids, f.IDs...)
	}
	return ids
}

// Err returns an aggregate error for a run with failures, or nil.
func (r *Report) Err() error {
	if r.Ok() {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("batch %d (%d records): %w", f.Batch, len(f.IDs), f.Err))
	}
	return errors.Join(errs...)
}
