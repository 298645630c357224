package commands

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newHelpEnvCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "helpenv",
		Short: "Show environment variable help",
		Long: `Shows a table of information about environment variables, the
    associated CLI option, and the currently evaluated value of that variable
    that can be used to influence metascaler's behaviour.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := ""
			if global.catalogAPIKey != "" {
				apiKey = "[MASKED]"
			}
			rows := [][]string{
				{"METASCALER_CATALOG_URL", "--catalog-url", global.catalogURL},
				{"METASCALER_CATALOG_API_KEY", "--catalog-api-key", apiKey},
				{"METASCALER_CATALOG_FIXTURE", "--catalog-fixture", global.catalogFixture},
				{"METASCALER_ASSET_TYPES", "--allowed-types", global.assetTypes},
				{"METASCALER_OUTPUT", "--output", global.output},
				{"METASCALER_LOG_LEVEL", "--log-level", global.logLevel},
				{"METASCALER_WORKERS", "run --workers", strconv.Itoa(envWorkers())},
				{"METASCALER_SEARCH_TIMEOUT", "run --search-timeout", envDuration("METASCALER_SEARCH_TIMEOUT", defaultSearchTimeout).String()},
				{"METASCALER_MUTATE_TIMEOUT", "run --mutate-timeout", envDuration("METASCALER_MUTATE_TIMEOUT", defaultMutateTimeout).String()},
			}
			renderTable(cmd.OutOrStdout(), []string{"Env Name", "CLI Option", "Value"}, rows)
			return nil
		},
	}
}
