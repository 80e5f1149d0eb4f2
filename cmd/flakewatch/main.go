package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/flakewatch/internal/config"
)

// settings holds what every command needs: environment config overridden
// by persistent flags.
type settings struct {
	service   config.ServiceConfig
	trackerDB string
	dryRun    bool
	logger    *slog.Logger
}

var current settings

var rootCmd = &cobra.Command{
	Use:   "flakewatch",
	Short: "Keep flaky and failing test issues in sync with CI results",
	Long: `flakewatch reconciles the test results of a CI build with the issues of a
repository: it files issues for failing tests, comments when they fail again,
closes them when they pass and marks tests that both pass and fail at the
same commit as flaky.

Configuration comes from the environment (FLAKEWATCH_GITHUB_TOKEN,
FLAKEWATCH_LOCK_DB, FLAKEWATCH_CONCURRENCY, ...) and from the repository's
.github/flakewatch.yaml.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		current.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(current.logger)

		svc, err := config.ServiceConfigFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("lock-db") {
			svc.LockDB, _ = cmd.Flags().GetString("lock-db")
		}
		if cmd.Flags().Changed("concurrency") {
			svc.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}
		if err := svc.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		current.service = svc
		current.trackerDB, _ = cmd.Flags().GetString("tracker-db")
		current.dryRun, _ = cmd.Flags().GetBool("dry-run")
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("dry-run", false, "Log tracker writes instead of performing them")
	rootCmd.PersistentFlags().String("tracker-db", "", "Use a local SQLite issue store instead of GitHub")
	rootCmd.PersistentFlags().String("lock-db", "", "SQLite file shared by all instances for issue locks (overrides FLAKEWATCH_LOCK_DB)")
	rootCmd.PersistentFlags().Int("concurrency", 0, "Packages processed in parallel (overrides FLAKEWATCH_CONCURRENCY)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
