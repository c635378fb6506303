package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sguzman/rics/internal/logging"
	"github.com/sguzman/rics/internal/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configDir string
		statePath string
		outDir    string
		logLevel  string
	)

	root := &cobra.Command{
		Use:           "rics",
		Short:         "Config-driven calendar ICS generator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "configs/sources", "directory of source TOML configs")
	root.PersistentFlags().StringVar(&statePath, "state-path", "data/state/events.json", "path of the durable event state file")
	root.PersistentFlags().StringVar(&outDir, "out-dir", "data/out", "root directory for calendar output")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")

	var (
		syncSource string
		dryRun     bool
	)
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch, parse, merge, rebuild calendars and persist state",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(logLevel)
			reports, err := pipeline.Sync(logger, pipeline.SyncOptions{
				ConfigDir: configDir,
				StatePath: statePath,
				OutDir:    outDir,
				Source:    syncSource,
				DryRun:    dryRun,
			})
			if err != nil {
				return err
			}
			for _, report := range reports {
				logger.Info().
					Str("source", report.SourceKey).
					Int("pages", report.PagesFetched).
					Int("parsed", report.RecordsParsed).
					Int("inserted", report.Inserted).
					Int("updated", report.Updated).
					Int("unchanged", report.Unchanged).
					Int("cancelled", report.Cancelled).
					Msg("source sync summary")
			}
			return nil
		},
	}
	syncCmd.Flags().StringVar(&syncSource, "source", "", "restrict the sync to one source key")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "merge and report without writing state or calendars")

	var (
		buildSource string
		buildYear   int
	)
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Rebuild calendar files from the persisted state only",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(logLevel)
			var year *int
			if cmd.Flags().Changed("year") {
				year = &buildYear
			}
			if err := pipeline.Build(logger, pipeline.BuildOptions{
				ConfigDir: configDir,
				StatePath: statePath,
				OutDir:    outDir,
				Source:    buildSource,
				Year:      year,
			}); err != nil {
				return err
			}
			logger.Info().Msg("build complete")
			return nil
		},
	}
	buildCmd.Flags().StringVar(&buildSource, "source", "", "restrict the build to one source key")
	buildCmd.Flags().IntVar(&buildYear, "year", 0, "rebuild only this year bucket")

	var sourceFile string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse source configs and report OK lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := pipeline.Validate(pipeline.ValidateOptions{
				ConfigDir:  configDir,
				SourceFile: sourceFile,
			})
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	validateCmd.Flags().StringVar(&sourceFile, "source-file", "", "validate a single source config file")

	harnessCmd := &cobra.Command{
		Use:   "harness",
		Short: "Run two consecutive syncs and emit a JSON stability report",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(logLevel)
			report, err := pipeline.RunHarness(logger, pipeline.HarnessOptions{
				ConfigDir: configDir,
				StatePath: statePath,
				OutDir:    outDir,
			})
			if err != nil {
				return err
			}
			pretty, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
			return nil
		},
	}

	root.AddCommand(syncCmd, buildCmd, validateCmd, harnessCmd)
	return root
}
