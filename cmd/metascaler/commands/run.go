package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaypipes/envutil"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/metascaler/internal/core"
)

const runHelpExtended = `

    Each row's "name" value is looked up among active catalog assets.
    Rows matching exactly one asset are updated; rows matching none or
    several are skipped and reported. Nothing is changed unless --execute
    is given.

    Press Ctrl-C to stop a run: rows already in flight finish, no new row
    starts, and the report covers the processed rows.
`

type runOptions struct {
	file          string
	format        string
	sheet         string
	types         []string
	execute       bool
	workers       int
	searchTimeout time.Duration
	mutateTimeout time.Duration
}

func newRunCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply a reference file to the catalog",
		Long:  "Resolve every row of a reference file and apply its metadata." + runHelpExtended,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runFile(ctx, cmd, global, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "Reference file (.csv, .tsv, .txt or .xlsx).")
	flags.StringVar(&opts.format, "format", "", "Format hint overriding the file extension (csv, tsv, xlsx).")
	flags.StringVar(&opts.sheet, "sheet", "", "Worksheet to read from a spreadsheet (default: first).")
	flags.StringSliceVarP(&opts.types, "types", "t", nil, "Restrict matches to these asset types.")
	flags.BoolVar(&opts.execute, "execute", false, "Submit the changes. Without it the run is dry.")
	flags.IntVarP(
		&opts.workers,
		"workers", "w",
		envWorkers(),
		"Rows processed concurrently.",
	)
	flags.DurationVar(
		&opts.searchTimeout,
		"search-timeout",
		envDuration("METASCALER_SEARCH_TIMEOUT", defaultSearchTimeout),
		"Timeout of one catalog lookup.",
	)
	flags.DurationVar(
		&opts.mutateTimeout,
		"mutate-timeout",
		envDuration("METASCALER_MUTATE_TIMEOUT", defaultMutateTimeout),
		"Timeout of one catalog update.",
	)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runFile(ctx context.Context, cmd *cobra.Command, global *globalOptions, opts *runOptions) error {
	req, err := readRequest(opts.file, opts.format, opts.sheet)
	if err != nil {
		return err
	}
	req.AssetTypes = opts.types
	req.DryRun = !opts.execute

	cat, err := global.openCatalog()
	if err != nil {
		return err
	}

	cfg := global.newConfig(opts.workers, opts.searchTimeout, opts.mutateTimeout)
	report, err := core.NewService(cat, nil, cfg).Run(ctx, req)
	if err != nil {
		return userError(err)
	}
	return writeReport(cmd.OutOrStdout(), global.output, report)
}

// readRequest loads a reference file into a run request.
func readRequest(path, format, sheet string) (core.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.RunRequest{}, fmt.Errorf("read reference file: %w", err)
	}
	return core.RunRequest{
		FileName: filepath.Base(path),
		Data:     data,
		Format:   format,
		Sheet:    sheet,
	}, nil
}

func envWorkers() int {
	return envutil.WithDefaultInt("METASCALER_WORKERS", defaultWorkers)
}

// envDuration reads a duration default from the environment, falling back
// when the variable is unset or unparsable.
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(envutil.WithDefault(key, ""))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
