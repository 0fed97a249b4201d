package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/progdex/progdex/internal/embedder"
	"github.com/progdex/progdex/internal/ledger"
	"github.com/progdex/progdex/internal/metrics"
	"github.com/progdex/progdex/internal/vecstore"
)

// newEmbedClient builds the batching embedding client from environment
// variables (set directly or applied from the YAML config).
func newEmbedClient(ctx context.Context, log *slog.Logger, m *metrics.Metrics) (*embedder.Client, error) {
	backend, err := embedder.NewBackendFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("embedder initialised", slog.String("provider", embedder.ResolveProvider()))

	return embedder.NewClient(backend, embedder.Config{
		BatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 0),
		RPS:       getEnvFloat("EMBEDDING_RPS", 0),
	}, log, m)
}

// newStore builds the vector store selected by STORE_BACKEND: "qdrant"
// (default) or "memory" with a JSON snapshot file at STORE_PATH.
func newStore(ctx context.Context, log *slog.Logger) (vecstore.Store, error) {
	switch backend := getEnvOrDefault("STORE_BACKEND", "qdrant"); backend {
	case "memory":
		path := os.Getenv("STORE_PATH")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("store: could not determine home directory: %w", err)
			}
			path = home + "/.progdex/store.json"
			if err := os.MkdirAll(home+"/.progdex", 0o700); err != nil {
				return nil, fmt.Errorf("store: %w", err)
			}
		}
		store, err := vecstore.OpenMemoryStore(path)
		if err != nil {
			return nil, err
		}
		log.Info("memory store ready", slog.String("path", path))
		return store, nil

	case "qdrant":
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnvOrDefault("QDRANT_COLLECTION", "progdex-programs")
		vectorSize := uint64(embedder.DefaultDimensions(embedder.ResolveProvider())) //nolint:gosec // dimensions are bounded

		store, err := vecstore.NewQdrantStore(ctx, &vecstore.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: vectorSize,
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		log.Info("qdrant store ready", slog.String("host", host), slog.Int("port", port), slog.String("collection", collection))
		return store, nil

	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q — valid values: qdrant, memory", backend)
	}
}

// newLedger opens the fingerprint ledger from PROGDEX_LEDGER_DB. An empty
// value selects the default path; "disabled" turns the ledger off.
func newLedger(log *slog.Logger) (ledger.Ledger, error) {
	path := os.Getenv("PROGDEX_LEDGER_DB")
	if path == "disabled" {
		log.Info("fingerprint ledger disabled — every record will be re-embedded")
		return nil, nil
	}
	if path == "" {
		var err error
		path, err = ledger.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	led, err := ledger.Open(path)
	if err != nil {
		return nil, err
	}
	log.Info("fingerprint ledger ready", slog.String("path", path))
	return led, nil
}

// dumpMetrics writes the registry contents in Prometheus text exposition
// format, for one-shot CLI runs that have no scrape endpoint.
func dumpMetrics(reg *prometheus.Registry, w io.Writer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
