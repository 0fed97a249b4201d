package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/progdex/progdex/internal/metrics"
)

// Defaults for the batch client. All are overridable via Config.
const (
	// DefaultBatchSize keeps individual provider payloads small enough for
	// every supported backend.
	DefaultBatchSize = 10
	// defaultMaxAttempts bounds retries of one batch on transient failures.
	defaultMaxAttempts = 4
	// defaultInitialBackoff is the delay before the first retry; it doubles
	// per attempt up to defaultMaxBackoff.
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 8 * time.Second
	// defaultCallTimeout bounds one provider round-trip.
	defaultCallTimeout = 30 * time.Second
	// defaultRPS is the sustained provider call rate; bursts up to the batch
	// count of a small ingest are absorbed by defaultBurst.
	defaultRPS   = 2
	defaultBurst = 4
)

// Config tunes the batch client. Zero values fall back to the defaults above.
type Config struct {
	// BatchSize is the number of documents sent per provider call.
	BatchSize int
	// MaxAttempts bounds how often one batch is retried on transient failures.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry (doubles per attempt).
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration
	// CallTimeout bounds a single provider round-trip; a timeout counts as a
	// transient failure.
	CallTimeout time.Duration
	// RPS is the sustained provider call rate (token bucket refill).
	RPS float64
	// Burst is the token bucket capacity.
	Burst int
}

// Client partitions document batches across rate-limited provider calls,
// retrying transient failures with exponential backoff. It holds no cache —
// skip-if-unchanged logic belongs to the ingestion pipeline.
// Safe for concurrent use; the rate limiter is shared across goroutines.
type Client struct {
	backend Backend
	cfg     Config
	limiter *rate.Limiter
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewClient wraps backend in a batching client. log and m may be nil.
func NewClient(backend Backend, cfg Config, log *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("embedder: backend must not be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		backend: backend,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		log:     log,
		metrics: m,
	}, nil
}

// BatchSize returns the effective batch size, so the ingestion pipeline can
// mirror it and avoid double-batching.
func (c *Client) BatchSize() int { return c.cfg.BatchSize }

// Span is one half-open partition [Start, End) of an input slice.
type Span struct {
	Start int
	End   int
}

// Partition splits n items into spans of at most size items, in order.
func Partition(n, size int) []Span {
	if n <= 0 || size <= 0 {
		return nil
	}
	spans := make([]Span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		spans = append(spans, Span{Start: start, End: end})
	}
	return spans
}

// EmbedBatch embeds all documents, preserving order: the returned slice is
// parallel to texts. Input is partitioned into batches of BatchSize; each
// batch is retried on transient failures up to MaxAttempts with exponential
// backoff. A batch that fails permanently aborts the whole call with a
// *ServiceError identifying the batch, so callers can resume from it.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	dim := 0
	for i, span := range Partition(len(texts), c.cfg.BatchSize) {
		vecs, err := c.embedSpan(ctx, i, texts[span.Start:span.End])
		if err != nil {
			return nil, err
		}
		if len(vecs) != span.End-span.Start {
			return nil, &ServiceError{
				Batch:    i,
				Attempts: 1,
				Err:      fmt.Errorf("backend returned %d vectors for %d documents", len(vecs), span.End-span.Start),
			}
		}
		for _, v := range vecs {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) != dim {
				return nil, &ServiceError{
					Batch:    i,
					Attempts: 1,
					Err:      fmt.Errorf("backend mixed dimensionalities (%d and %d)", dim, len(v)),
				}
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embedSpan runs one batch through the rate limiter and retry loop.
func (c *Client) embedSpan(ctx context.Context, batch int, texts []string) ([][]float32, error) {
	backoff := c.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		vecs, err := c.callOnce(ctx, texts)
		if err == nil {
			c.metrics.EmbedCall(metrics.OutcomeOK, time.Since(start))
			return vecs, nil
		}
		c.metrics.EmbedCall(metrics.OutcomeError, time.Since(start))
		lastErr = err

		if !IsTransient(err) {
			return nil, &ServiceError{Batch: batch, Attempts: attempt, Err: err}
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		c.metrics.EmbedRetry()
		c.log.Warn("embedder: transient failure, retrying batch",
			slog.Int("batch", batch),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}

	return nil, &ServiceError{Batch: batch, Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

// callOnce performs a single provider call under the per-call timeout,
// translating a timeout into the transient errCallTimeout sentinel unless the
// caller's own context expired.
func (c *Client) callOnce(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	vecs, err := c.backend.Embed(callCtx, texts)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s: %v", errCallTimeout, c.cfg.CallTimeout, err)
	}
	return vecs, err
}
