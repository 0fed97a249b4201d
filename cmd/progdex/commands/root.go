// Package commands defines all Cobra CLI commands for the progdex binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/progdex/progdex/internal/audit"
	"github.com/progdex/progdex/internal/config"
	"github.com/progdex/progdex/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "progdex",
		Short: "progdex — semantic search over an academic-program catalog",
		Long: `progdex ingests a catalog of academic programs into a vector store and
answers natural-language queries over it, optionally narrowed by exact
metadata filters (region, tier, thesis requirement, ...).

The embedding provider is selected via the EMBEDDING_PROVIDER environment
variable or a YAML config file (~/.progdex/config.yaml).
See 'progdex --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.progdex/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewSearchCmd(),
		NewStatsCmd(),
		NewVersionCmd(),
	)

	return root
}
