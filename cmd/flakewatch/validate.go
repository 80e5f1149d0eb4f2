package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/flakewatch/internal/config"
	"github.com/steveyegge/flakewatch/internal/event"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config [path]",
	Short: "Check a flakewatch.yaml file or a repository's configuration",
	Long: `Validate a local configuration file, or with --repo, the configuration a
repository would use (including the organization's .github fallback).

Examples:
  flakewatch validate-config .github/flakewatch.yaml
  flakewatch validate-config --repo acme/widgets`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		repoFlag, _ := cmd.Flags().GetString("repo")
		if len(args) == 1 {
			cfg, err := config.LoadFile(args[0])
			if err != nil {
				fmt.Printf("%s %v\n", red("✗"), err)
				os.Exit(1)
			}
			fmt.Printf("%s %s is valid (issuePriority: %s)\n", green("✓"), args[0], cfg.IssuePriority)
			return
		}
		if repoFlag == "" {
			fmt.Fprintf(os.Stderr, "Error: pass a file path or --repo\n")
			os.Exit(1)
		}

		owner, repo, err := event.SplitRepo(repoFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		ctx := context.Background()
		b, err := openBackend(ctx, current, owner, repo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = b.Close() }()
		if b.github == nil {
			fmt.Fprintf(os.Stderr, "Error: --repo needs GitHub; drop --tracker-db\n")
			os.Exit(1)
		}

		if err := config.CheckMisnamed(ctx, b.github, owner, repo); err != nil {
			fmt.Printf("%s %v\n", yellow("⚠"), err)
		}
		cfg, origin, err := config.Load(ctx, b.github, owner, repo)
		if err != nil {
			fmt.Printf("%s %v\n", red("✗"), err)
			os.Exit(1)
		}
		fmt.Printf("%s %s: config from %s is valid (issuePriority: %s)\n", green("✓"), repoFlag, origin, cfg.IssuePriority)
	},
}

func init() {
	validateConfigCmd.Flags().String("repo", "", "Validate the configuration of this repository (owner/name)")
	rootCmd.AddCommand(validateConfigCmd)
}
