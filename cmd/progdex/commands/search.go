package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/progdex/progdex/internal/logging"
	"github.com/progdex/progdex/internal/search"
)

// NewSearchCmd constructs the `progdex search` command, which answers one
// semantic query against the indexed catalog.
func NewSearchCmd() *cobra.Command {
	var filterJSON string
	var k int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Query the indexed catalog in natural language",
		Long: `Embed a natural-language query and return the most similar programs.

An optional --filter restricts candidates by exact metadata before similarity
ranking. Filters are JSON: a bare value means equality, operator objects
support eq, in, gt, and lt, and multiple keys combine with AND.

Examples:
  progdex search "research-heavy ML programs with strong industry ties"
  progdex search "affordable CS masters in Europe" --filter '{"region": "Europe"}'
  progdex search "PhD with funding" --filter '{"tier": {"in": ["T1", "T2"]}, "thesis_required": true}' --k 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			filter, err := search.ParseFilter(filterJSON)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			client, err := newEmbedClient(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("search: failed to initialise embedder: %w", err)
			}

			store, err := newStore(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer store.Close()

			if k <= 0 {
				k = getEnvInt("SEARCH_DEFAULT_K", 0)
			}
			engine := search.NewEngine(client, store, log, nil)
			results, err := engine.Search(ctx, args[0], filter, k)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(results) == 0 {
				fmt.Println("no matching programs")
				return nil
			}
			for i, r := range results {
				name, _ := r.Metadata["program_name"].(string)
				uni, _ := r.Metadata["university"].(string)
				fmt.Printf("%2d. %-24s %-36s %-28s score=%.4f\n", i+1, r.ID, name, uni, r.Score)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filterJSON, "filter", "", "JSON metadata filter applied before ranking")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of results to return (default from SEARCH_DEFAULT_K, then 5)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit results as JSON")

	return cmd
}
