package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/metascaler/internal/core"
)

func newFormatCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "format",
		Short: "Describe the reference file format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			guide := core.NewFormatGuide(global.allowedTypes())
			w := cmd.OutOrStdout()
			if global.output != outputTable {
				return writeStructured(w, global.output, guide)
			}

			renderTable(w, []string{"Item", "Value"}, [][]string{
				{"Identity column", guide.IdentityColumn},
				{"Standard columns", strings.Join(guide.StandardColumns, ", ")},
				{"Custom metadata column", guide.CustomExample},
				{"Certificate values", strings.Join(guide.CertificateValues, ", ")},
				{"File extensions", strings.Join(guide.FileExtensions, ", ")},
				{"Format hints", strings.Join(guide.FormatHints, ", ")},
				{"Asset types", strings.Join(guide.AssetTypes, ", ")},
			})
			for _, rule := range guide.Rules {
				fmt.Fprintln(w, "  -", rule)
			}
			return nil
		},
	}
}
