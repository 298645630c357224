// Package commands implements the metascaler command line tool.
package commands

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jaypipes/envutil"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/metascaler/internal/catalog"
	"github.com/JonMunkholm/metascaler/internal/config"
	"github.com/JonMunkholm/metascaler/internal/core"
	"github.com/JonMunkholm/metascaler/internal/logging"
)

const (
	defaultAssetTypes    = "Column,Table,View"
	defaultOutput        = outputTable
	defaultLogLevel      = "warn"
	defaultWorkers       = 1
	defaultSearchTimeout = 10 * time.Second
	defaultMutateTimeout = 30 * time.Second
	defaultMaxFileSize   = 10 << 20
)

const errNoCatalog = `no catalog configured.

Set METASCALER_CATALOG_URL (or --catalog-url) to use a catalog API, or
METASCALER_CATALOG_FIXTURE (or --catalog-fixture) to use a YAML fixture.`

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	catalogURL     string
	catalogAPIKey  string
	catalogFixture string
	assetTypes     string
	output         string
	logLevel       string
}

// RootCommand is the metascaler CLI.
var RootCommand = NewRootCommand()

// NewRootCommand builds a fresh command tree. Flag defaults are read from
// METASCALER_* environment variables at construction time.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "metascaler",
		Short: "metascaler - bulk catalog metadata updates from a reference file.",
		Long: `Apply descriptions, owners, certificates and custom metadata to many
catalog assets at once, driven by a CSV or XLSX reference file.

Runs are dry unless --execute is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(opts.output); err != nil {
				return err
			}
			logging.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(
		&opts.catalogURL,
		"catalog-url",
		envutil.WithDefault("METASCALER_CATALOG_URL", ""),
		"Base URL of the catalog API.",
	)
	flags.StringVar(
		&opts.catalogAPIKey,
		"catalog-api-key",
		envutil.WithDefault("METASCALER_CATALOG_API_KEY", ""),
		"API key sent as a bearer token to the catalog.",
	)
	flags.StringVar(
		&opts.catalogFixture,
		"catalog-fixture",
		envutil.WithDefault("METASCALER_CATALOG_FIXTURE", ""),
		"YAML fixture describing an in-memory catalog (used instead of --catalog-url).",
	)
	flags.StringVar(
		&opts.assetTypes,
		"allowed-types",
		envutil.WithDefault("METASCALER_ASSET_TYPES", defaultAssetTypes),
		"Comma-separated asset types a run may be scoped to.",
	)
	flags.StringVarP(
		&opts.output,
		"output", "o",
		envutil.WithDefault("METASCALER_OUTPUT", defaultOutput),
		"Output format: table, json or yaml.",
	)
	flags.StringVar(
		&opts.logLevel,
		"log-level",
		envutil.WithDefault("METASCALER_LOG_LEVEL", defaultLogLevel),
		"Log level written to stderr: debug, info, warn or error.",
	)

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newClassifyCommand(opts))
	root.AddCommand(newFormatCommand(opts))
	root.AddCommand(newHelpEnvCommand(opts))
	return root
}

// allowedTypes splits the --allowed-types list.
func (o *globalOptions) allowedTypes() []string {
	var types []string
	for _, t := range strings.Split(o.assetTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// openCatalog prefers the fixture when both sources are set.
func (o *globalOptions) openCatalog() (core.Catalog, error) {
	switch {
	case o.catalogFixture != "":
		m, err := catalog.LoadFixture(o.catalogFixture)
		if err != nil {
			return nil, err
		}
		return m, nil
	case o.catalogURL != "":
		c, err := catalog.NewClient(config.CatalogConfig{
			BaseURL: o.catalogURL,
			APIKey:  o.catalogAPIKey,
		}, &http.Client{})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, errors.New(errNoCatalog)
	}
}

// newConfig builds the service configuration for a local run.
func (o *globalOptions) newConfig(workers int, searchTimeout, mutateTimeout time.Duration) *config.Config {
	cfg := &config.Config{}
	cfg.Catalog.AssetTypes = o.allowedTypes()
	cfg.Catalog.SearchTimeout = searchTimeout
	cfg.Catalog.MutateTimeout = mutateTimeout
	cfg.Run.MaxFileSize = defaultMaxFileSize
	cfg.Run.Workers = workers
	cfg.Run.MaxConcurrent = 1
	return cfg
}

// userError prefixes a technical error with its user-facing message.
func userError(err error) error {
	if !core.IsUserFacing(err) {
		return err
	}
	return fmt.Errorf("%s\n  %w", core.FormatUserError(err), err)
}
