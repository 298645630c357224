package commands

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/metascaler/internal/core"
)

type classifyOptions struct {
	file   string
	format string
	sheet  string
}

func newClassifyCommand(global *globalOptions) *cobra.Command {
	opts := &classifyOptions{}

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show how each column of a reference file will be used",
		Long: `Parse a reference file and print its column plan: the identity column,
the standard attributes and custom metadata fields each column updates, and
the columns that will be ignored. The catalog is not contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(opts.file, opts.format, opts.sheet)
			if err != nil {
				return err
			}

			cfg := global.newConfig(defaultWorkers, defaultSearchTimeout, defaultMutateTimeout)
			plan, table, err := core.NewService(nil, nil, cfg).Prepare(req)
			if err != nil {
				return userError(err)
			}
			return writePlan(cmd.OutOrStdout(), global.output, plan, len(table.Rows))
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Reference file (.csv, .tsv, .txt or .xlsx).")
	cmd.Flags().StringVar(&opts.format, "format", "", "Format hint overriding the file extension.")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "Worksheet to read from a spreadsheet.")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
