package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/progdex/progdex/internal/ingestion"
	"github.com/progdex/progdex/internal/logging"
	"github.com/progdex/progdex/internal/metrics"
)

// NewIngestCmd constructs the `progdex ingest` command, which runs the
// catalog ingestion pipeline to populate the vector store.
func NewIngestCmd() *cobra.Command {
	var file string
	var concurrency int
	var noSkip bool
	var printMetrics bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a program catalog into the vector store",
		Long: `Build, embed, and index every record of a catalog file (.csv or .json).

Re-running ingest over the same file is safe: entries are keyed by record id,
so unchanged records are overwritten in place (or skipped entirely when the
fingerprint ledger recognises them). A run that hits embedding failures keeps
going — the summary lists the failed batches, and the next run redoes only
those.

Relevant environment variables:
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure, gemini (default: ollama)
  STORE_BACKEND        Vector store: qdrant, memory (default: qdrant)
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_COLLECTION    Collection name (default: progdex-programs)
  PROGDEX_LEDGER_DB    Fingerprint database path ("disabled" to turn off)

Examples:
  progdex ingest --file programs.csv
  progdex ingest --file programs.json --concurrency 8
  progdex ingest --file programs.csv --no-skip   # re-embed everything`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if file == "" {
				return fmt.Errorf("ingest: --file is required")
			}
			records, err := ingestion.LoadRecords(file)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("ingest: %s contains no records", file)
			}
			log.Info("catalog loaded", slog.String("file", file), slog.Int("records", len(records)))

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)

			client, err := newEmbedClient(ctx, log, m)
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}

			store, err := newStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			led, err := newLedger(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if led != nil {
				defer led.Close()
			}

			if concurrency <= 0 {
				concurrency = getEnvInt("INGEST_CONCURRENCY", 0)
			}
			pipeline, err := ingestion.NewPipeline(client, store, led, ingestion.Config{
				Concurrency:   concurrency,
				SkipUnchanged: !noSkip,
			}, log, m)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			report, err := pipeline.Ingest(ctx, records)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Printf("ingested %d, skipped %d, failed %d\n",
				report.Ingested, report.Skipped, len(report.FailedIDs()))
			if printMetrics {
				if err := dumpMetrics(reg, os.Stderr); err != nil {
					log.Warn("ingest: could not dump metrics", slog.String("error", err.Error()))
				}
			}
			if !report.Ok() {
				return fmt.Errorf("ingest: %d batches failed: %w", len(report.Failed), report.Err())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Catalog file to ingest (.csv or .json)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of batches processed in parallel (default from INGEST_CONCURRENCY)")
	cmd.Flags().BoolVar(&noSkip, "no-skip", false, "Re-embed every record even when its content is unchanged")
	cmd.Flags().BoolVar(&printMetrics, "print-metrics", false, "Dump pipeline metrics to stderr after the run")

	return cmd
}
