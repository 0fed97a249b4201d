package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/progdex/progdex/internal/logging"
	"github.com/progdex/progdex/internal/search"
	"github.com/progdex/progdex/internal/vecstore"
)

// defaultTiers and defaultRegions are the categorical values broken out by
// the stats command when no --tiers/--regions override is given. Tiers rank
// T0 (top) > T1 > T2. Entries outside these lists still count toward the
// total, so a custom taxonomy should be passed explicitly.
var (
	defaultTiers   = []string{"T0", "T1", "T2"}
	defaultRegions = []string{"North America", "Europe", "Asia", "Oceania"}
)

// labelCount is one row of a categorical breakdown.
type labelCount struct {
	Label string
	Count uint64
}

// catalogStats summarises the indexed catalog, optionally scoped by a filter.
type catalogStats struct {
	Total      uint64
	Regions    []labelCount
	Tiers      []labelCount
	Thesis     uint64
	Internship uint64
}

// collectStats gathers entry counts from the store: total, per region, per
// tier, and by thesis/internship requirement. scope, when non-nil, narrows
// every count.
func collectStats(ctx context.Context, store vecstore.Store, scope vecstore.Filter, tiers, regions []string) (*catalogStats, error) {
	count := func(f vecstore.Filter) (uint64, error) {
		switch {
		case scope == nil:
			// f may also be nil (total count).
		case f == nil:
			f = scope
		default:
			f = vecstore.And(scope, f)
		}
		return store.Count(ctx, f)
	}

	stats := &catalogStats{}
	var err error
	if stats.Total, err = count(nil); err != nil {
		return nil, err
	}
	for _, region := range regions {
		n, err := count(vecstore.Eq("region", region))
		if err != nil {
			return nil, err
		}
		stats.Regions = append(stats.Regions, labelCount{Label: region, Count: n})
	}
	for _, tier := range tiers {
		n, err := count(vecstore.Eq("tier", tier))
		if err != nil {
			return nil, err
		}
		stats.Tiers = append(stats.Tiers, labelCount{Label: tier, Count: n})
	}
	if stats.Thesis, err = count(vecstore.Eq("thesis_required", true)); err != nil {
		return nil, err
	}
	if stats.Internship, err = count(vecstore.Eq("internship_required", true)); err != nil {
		return nil, err
	}
	return stats, nil
}

// NewStatsCmd constructs the `progdex stats` command, which summarises the
// indexed catalog by exact metadata counts.
func NewStatsCmd() *cobra.Command {
	var filterJSON string
	var tiers []string
	var regions []string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise the indexed catalog",
		Long: `Print entry counts for the indexed catalog: total, per region, per tier,
and by thesis/internship requirement. An optional --filter scopes every count.

The tier and region breakdowns default to the catalog's standard taxonomy
(tiers T0 > T1 > T2). Pass --tiers/--regions to break out other values —
entries outside the listed values are still included in the total.

Examples:
  progdex stats
  progdex stats --filter '{"degree_type": "PhD"}'
  progdex stats --tiers T0,T1 --regions Europe,Asia`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			scope, err := search.ParseFilter(filterJSON)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			store, err := newStore(ctx, log)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer store.Close()

			stats, err := collectStats(ctx, store, scope, tiers, regions)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			fmt.Printf("programs: %d\n", stats.Total)
			fmt.Println("\nby region:")
			for _, row := range stats.Regions {
				fmt.Printf("  %-16s %d\n", row.Label, row.Count)
			}
			fmt.Println("\nby tier:")
			for _, row := range stats.Tiers {
				fmt.Printf("  %-16s %d\n", row.Label, row.Count)
			}
			fmt.Printf("\nthesis required:     %d\ninternship required: %d\n", stats.Thesis, stats.Internship)
			return nil
		},
	}

	cmd.Flags().StringVar(&filterJSON, "filter", "", "JSON metadata filter scoping every count")
	cmd.Flags().StringSliceVar(&tiers, "tiers", defaultTiers, "Tier values to break out")
	cmd.Flags().StringSliceVar(&regions, "regions", defaultRegions, "Region values to break out")

	return cmd
}
