package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/progdex/progdex/internal/catalog"
	"github.com/progdex/progdex/internal/embedder"
	"github.com/progdex/progdex/internal/ledger"
	"github.com/progdex/progdex/internal/vecstore"
)

// stubBackend embeds every text as a fixed-size vector. It can be scripted to
// fail whenever a batch contains failOn, which makes failure injection
// deterministic even when batches run concurrently.
type stubBackend struct {
	mu     sync.Mutex
	calls  int
	failOn string
	err    error
}

func (s *stubBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	failOn, failErr := s.failOn, s.err
	s.mu.Unlock()

	if failOn != "" {
		for _, t := range texts {
			if strings.Contains(t, failOn) {
				return nil, failErr
			}
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0, 0}
	}
	return out, nil
}

func (s *stubBackend) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func record(i int) catalog.Record {
	return catalog.Record{
		Key: fmt.Sprintf("prog-%02d", i),
		Fields: map[string]any{
			"program_name": fmt.Sprintf("Program %d", i),
			"university":   "Test University",
			"region":       "Europe",
			"tier":         "T1",
		},
	}
}

func records(n int) []catalog.Record {
	out := make([]catalog.Record, n)
	for i := range out {
		out[i] = record(i)
	}
	return out
}

func newTestPipeline(t *testing.T, backend embedder.Backend, led ledger.Ledger, cfg Config) (*Pipeline, *vecstore.MemoryStore) {
	t.Helper()
	client, err := embedder.NewClient(backend, embedder.Config{
		BatchSize:      10,
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		RPS:            10000,
		Burst:          100,
	}, nil, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	store := vecstore.NewMemoryStore()
	p, err := NewPipeline(client, store, led, cfg, nil, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, store
}

func Test_Ingest_AllRecords(t *testing.T) {
	t.Parallel()
	backend := &stubBackend{}
	p, store := newTestPipeline(t, backend, nil, Config{})

	report, err := p.Ingest(context.Background(), records(25))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !report.Ok() {
		t.Fatalf("want clean run, got failures: %v", report.Err())
	}
	if report.Ingested != 25 || report.Skipped != 0 {
		t.Errorf("want 25 ingested / 0 skipped, got %d / %d", report.Ingested, report.Skipped)
	}

	n, err := store.Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 25 {
		t.Errorf("want 25 stored entries, got %d", n)
	}
	if got := backend.callCount(); got != 3 {
		t.Errorf("want 3 provider calls for 25 records at batch size 10, got %d", got)
	}
}

func Test_Ingest_BuildFailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()
	p, store := newTestPipeline(t, &stubBackend{}, nil, Config{})

	recs := records(3)
	recs[1].Fields["pros"] = []string{"not", "a", "scalar"}

	report, err := p.Ingest(context.Background(), recs)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Ingested != 2 {
		t.Errorf("want 2 ingested, got %d", report.Ingested)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("want 1 failure, got %v", report.Failed)
	}
	f := report.Failed[0]
	if f.Batch != -1 {
		t.Errorf("build failure should carry batch -1, got %d", f.Batch)
	}
	if len(f.IDs) != 1 || f.IDs[0] != "prog-01" {
		t.Errorf("want failed id prog-01, got %v", f.IDs)
	}
	var verr *catalog.ValidationError
	if !errors.As(f.Err, &verr) {
		t.Errorf("want *catalog.ValidationError, got %v", f.Err)
	}

	n, _ := store.Count(context.Background(), nil)
	if n != 2 {
		t.Errorf("want 2 stored entries, got %d", n)
	}
}

func Test_Ingest_BatchFailureIsPartial(t *testing.T) {
	t.Parallel()
	// Program 12 sits in batch 1 of 3; its batch fails permanently while
	// batches 0 and 2 go through.
	backend := &stubBackend{
		failOn: "Program 12",
		err:    &embedder.ProviderError{Status: 401, Class: embedder.ClassAuth},
	}
	p, store := newTestPipeline(t, backend, nil, Config{Concurrency: 1})

	report, err := p.Ingest(context.Background(), records(25))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Ingested != 15 {
		t.Errorf("want 15 ingested, got %d", report.Ingested)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("want 1 failed batch, got %v", report.Failed)
	}
	f := report.Failed[0]
	if f.Batch != 1 || len(f.IDs) != 10 {
		t.Errorf("want batch 1 with 10 ids, got batch %d with %d ids", f.Batch, len(f.IDs))
	}
	var serr *embedder.ServiceError
	if !errors.As(f.Err, &serr) {
		t.Errorf("want *embedder.ServiceError cause, got %v", f.Err)
	}

	// The store holds exactly the records outside the failed batch.
	n, _ := store.Count(context.Background(), nil)
	if n != 15 {
		t.Errorf("want 15 stored entries, got %d", n)
	}
	for _, id := range f.IDs {
		c, _ := store.Count(context.Background(), vecstore.Eq("program_name", "Program 12"))
		if c != 0 {
			t.Errorf("failed record %s must not be stored", id)
			break
		}
	}
}

func Test_Ingest_RerunIsIdempotent(t *testing.T) {
	t.Parallel()
	p, store := newTestPipeline(t, &stubBackend{}, nil, Config{})
	ctx := context.Background()

	for range 2 {
		if _, err := p.Ingest(ctx, records(12)); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	n, err := store.Count(ctx, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 12 {
		t.Errorf("re-running over the same records must not duplicate: got %d entries", n)
	}
}

func Test_Ingest_SkipUnchanged(t *testing.T) {
	t.Parallel()
	led, err := ledger.Open(":memory:")
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer led.Close()

	backend := &stubBackend{}
	p, _ := newTestPipeline(t, backend, led, Config{SkipUnchanged: true})
	ctx := context.Background()

	report, err := p.Ingest(ctx, records(10))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if report.Ingested != 10 {
		t.Fatalf("want 10 ingested on first run, got %d", report.Ingested)
	}
	callsAfterFirst := backend.callCount()

	report, err = p.Ingest(ctx, records(10))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if report.Skipped != 10 || report.Ingested != 0 {
		t.Errorf("want 10 skipped / 0 ingested on unchanged re-run, got %d / %d", report.Skipped, report.Ingested)
	}
	if got := backend.callCount(); got != callsAfterFirst {
		t.Errorf("unchanged re-run must not call the provider: %d extra calls", got-callsAfterFirst)
	}
}

func Test_Ingest_ChangedRecordReembedded(t *testing.T) {
	t.Parallel()
	led, err := ledger.Open(":memory:")
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer led.Close()

	p, store := newTestPipeline(t, &stubBackend{}, led, Config{SkipUnchanged: true})
	ctx := context.Background()

	recs := records(5)
	if _, err := p.Ingest(ctx, recs); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	recs[2].Fields["pros"] = "now with a new strengths section"
	report, err := p.Ingest(ctx, recs)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if report.Ingested != 1 || report.Skipped != 4 {
		t.Errorf("want 1 ingested / 4 skipped, got %d / %d", report.Ingested, report.Skipped)
	}

	n, _ := store.Count(ctx, nil)
	if n != 5 {
		t.Errorf("changed record must replace, not duplicate: got %d entries", n)
	}

	// A metadata-only change (no document text involved) must also defeat
	// the skip.
	recs[4].Fields["thesis_required"] = true
	report, err = p.Ingest(ctx, recs)
	if err != nil {
		t.Fatalf("third ingest: %v", err)
	}
	if report.Ingested != 1 || report.Skipped != 4 {
		t.Errorf("metadata change: want 1 ingested / 4 skipped, got %d / %d", report.Ingested, report.Skipped)
	}
}

func Test_Ingest_FailedBatchRetriedNextRun(t *testing.T) {
	t.Parallel()
	led, err := ledger.Open(":memory:")
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer led.Close()

	backend := &stubBackend{
		failOn: "Program 12",
		err:    &embedder.ProviderError{Status: 503, Class: embedder.ClassTransient},
	}
	p, store := newTestPipeline(t, backend, led, Config{SkipUnchanged: true, Concurrency: 1})
	ctx := context.Background()

	report, err := p.Ingest(ctx, records(25))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if report.Ingested != 15 || len(report.FailedIDs()) != 10 {
		t.Fatalf("want 15 ingested and 10 failed, got %d / %d", report.Ingested, len(report.FailedIDs()))
	}

	// Provider recovers; the next run embeds only the failed batch.
	backend.mu.Lock()
	backend.failOn = ""
	backend.mu.Unlock()

	report, err = p.Ingest(ctx, records(25))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if report.Ingested != 10 || report.Skipped != 15 {
		t.Errorf("want 10 ingested / 15 skipped on recovery run, got %d / %d", report.Ingested, report.Skipped)
	}
	if !report.Ok() {
		t.Errorf("recovery run should be clean: %v", report.Err())
	}

	n, _ := store.Count(ctx, nil)
	if n != 25 {
		t.Errorf("want all 25 entries after recovery, got %d", n)
	}
}

func Test_Ingest_EmptyInput(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t, &stubBackend{}, nil, Config{})

	report, err := p.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Ingested != 0 || report.Skipped != 0 || !report.Ok() {
		t.Errorf("empty input should produce an empty clean report: %+v", report)
	}
}
