package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/jaki95/registry-sync/config"
	"github.com/jaki95/registry-sync/internal/app"
	"github.com/jaki95/registry-sync/internal/syncer"
	"github.com/k0kubun/go-ansi"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config/config.yaml"

var errSnapshotsDisabled = errors.New("snapshots are not configured")

// RootCmd returns the registry-sync command tree.
func RootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "registry-sync",
		Short: "Mirror the equipment registry into a local store",
		Long: `registry-sync scrapes the public equipment registry listing, reconciles
every row with the local operator store and keeps snapshots of what it saw.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Keep logs out of the way of the progress bar
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to the configuration file")

	cmd.AddCommand(syncCmd(&configPath))
	cmd.AddCommand(importCmd(&configPath))
	cmd.AddCommand(snapshotsCmd(&configPath))

	return cmd
}

func syncCmd(configPath *string) *cobra.Command {
	var company string
	var maxPages int

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scrape the registry and upsert every record",
		Long: `Fetch listing pages until an empty page or the page budget is reached,
then insert new records and update changed ones.

Examples:
  registry-sync sync
  registry-sync sync --company 1234 --max-pages 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := buildApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer services.Close()

			req := syncer.Request{}
			if company != "" {
				req.CompanyFilter = &company
			}
			if maxPages > 0 {
				req.MaxPages = &maxPages
			}

			services.Tracker.AddListener(NewReporter(ansi.NewAnsiStdout()).OnProgress)

			summary, err := services.Orchestrator.Run(cmd.Context(), req)
			if summary != nil {
				PrintSyncSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "Only sync equipment of this registry company ID")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Maximum number of pages to fetch (0 uses the configured budget)")

	return cmd
}

func importCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import [snapshot]",
		Short: "Import a stored snapshot instead of scraping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := buildApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer services.Close()

			services.Tracker.AddListener(NewReporter(ansi.NewAnsiStdout()).OnProgress)

			summary, err := services.ImportSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			PrintImportSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func snapshotsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := buildApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer services.Close()

			if services.Snapshots == nil {
				return errSnapshotsDisabled
			}
			names, err := services.Snapshots.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func buildApp(cmd *cobra.Command, configPath string) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), cfg)
}

// PrintSyncSummary writes the one-line result of a sync run.
func PrintSyncSummary(w io.Writer, s *syncer.Summary) {
	fmt.Fprintf(w, "\nScraped %d records from %d pages (%s failed): %s inserted, %s updated, %d unchanged, %s errors\n",
		s.Scraped, s.Pages.Total, countColor(s.Pages.Errors, color.FgRed),
		countColor(s.Inserted, color.FgGreen), countColor(s.Updated, color.FgYellow),
		s.Unchanged, countColor(s.Errors, color.FgRed))
}

// PrintImportSummary writes the one-line result of a snapshot import.
func PrintImportSummary(w io.Writer, s *syncer.ImportSummary) {
	fmt.Fprintf(w, "\nImported %d records: %s inserted, %s updated, %d unchanged, %s errors\n",
		s.Scraped, countColor(s.Inserted, color.FgGreen), countColor(s.Updated, color.FgYellow),
		s.Unchanged, countColor(s.Errors, color.FgRed))
}

// countColor highlights non-zero counts.
func countColor(n int, attr color.Attribute) string {
	if n == 0 {
		return "0"
	}
	return color.New(attr).Sprint(n)
}
