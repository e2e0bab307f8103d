// Package cli provides the schemagraph command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OFFIS-RIT/schemagraph/internal/config"
	"github.com/OFFIS-RIT/schemagraph/internal/util"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger/console"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"
	"github.com/OFFIS-RIT/schemagraph/pkg/schema"

	"github.com/spf13/cobra"
)

const defaultOutBase = "graph/uml_graph"

const msgNoCollections = "No SharePoint lists found or authentication failed"

type options struct {
	token   string
	siteID  string
	out     string
	cfgFile string
	debug   bool
}

// NewRootCmd creates the schemagraph command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "schemagraph",
		Short: "Draw the list schema of a SharePoint site",
		Long: `schemagraph reads the lists and columns of a SharePoint site through
Microsoft Graph and renders them as a diagram: one table per list, one
arrow per lookup column.`,
		Args: cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug:  opts.debug || util.GetEnvBool("DEBUG", false),
				Output: cmd.ErrOrStderr(),
			}))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.token, "token", "", "Microsoft Graph access token")
	flags.StringVar(&opts.siteID, "site-id", "", "SharePoint site id")
	flags.StringVarP(&opts.out, "out", "o", "", "output file (default: graph/uml_graph.<format>)")
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default: $SCHEMAGRAPH_CONFIG)")
	flags.BoolVar(&opts.debug, "debug", false, "debug logging")

	flags.String("format", "", "output format (png|svg|pdf|dot)")
	flags.Int("parallel", 0, "concurrent column listings")
	flags.Int("max-retries", 0, "attempts per metadata request")
	flags.Duration("fetch-timeout", 0, "deadline for the whole schema fetch")
	flags.String("duplicate-names", "", "duplicate list name policy (error|last)")
	flags.String("base-url", "", "Microsoft Graph base URL")
	flags.String("dot-binary", "", "path to the Graphviz dot executable")
	flags.StringSlice("ignore-collections", nil, "list names to skip (replaces the defaults)")
	flags.StringSlice("ignore-fields", nil, "column names to skip (replaces the defaults)")
	flags.String("ignore-field-pattern", "", "regular expression of column names to skip")

	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("site-id")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"png", "svg", "pdf", "dot"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	client, err := cfg.NewGraphClient()
	if err != nil {
		return err
	}
	renderer, err := cfg.NewRenderer("")
	if err != nil {
		return err
	}

	creds := metadata.Credentials{Token: opts.token, SiteID: opts.siteID}
	data, result, err := client.RenderGraph(cmd.Context(), cfg.NewSource(), renderer, creds)
	if err != nil {
		if errors.Is(err, schema.ErrSourceUnavailable) {
			logger.Error(msgNoCollections, "site", opts.siteID, "err", err)
		}
		return err
	}
	for _, d := range result.Diagnostics {
		logger.Warn("Diagnostic", "kind", d.Kind, "collection", d.Collection, "message", d.Message)
	}

	out := opts.out
	if out == "" {
		out = defaultOutBase + "." + renderer.Extension()
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write diagram: %w", err)
	}

	logger.Info("Diagram saved", "path", out, "lists", len(result.Model.Nodes), "relationships", len(result.Model.Edges))
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		// already logged
		if !errors.Is(err, schema.ErrSourceUnavailable) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		}
		return 1
	}
	return 0
}
