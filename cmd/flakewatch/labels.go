package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/flakewatch/internal/event"
	"github.com/steveyegge/flakewatch/internal/labelsync"
	"github.com/steveyegge/flakewatch/internal/types"
)

var syncLabelsCmd = &cobra.Command{
	Use:   "sync-labels <owner/name>...",
	Short: "Create or update the flakewatch labels in repositories",
	Long: `Make sure every repository has the flakewatch issue, flaky and quiet labels
with the expected colors and descriptions.

Examples:
  flakewatch sync-labels acme/widgets
  flakewatch sync-labels acme/widgets acme/gadgets --dry-run`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		if current.trackerDB != "" {
			fmt.Fprintf(os.Stderr, "Error: labels are only managed on GitHub\n")
			os.Exit(1)
		}

		repos := make([][2]string, 0, len(args))
		for _, full := range args {
			owner, repo, err := event.SplitRepo(full)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			repos = append(repos, [2]string{owner, repo})
		}

		ctx := context.Background()
		b, err := openBackend(ctx, current, repos[0][0], repos[0][1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = b.Close() }()

		failed := false
		for _, r := range repos {
			gh := b.github.Repo(r[0], r[1])
			var client labelsync.Client = gh
			if current.dryRun {
				client = dryRunLabels{gh}
			}
			res, err := labelsync.Sync(ctx, client, current.logger.With("repo", gh.FullName()))
			if err != nil {
				failed = true
				fmt.Printf("%s %s: %v\n", red("✗"), gh.FullName(), err)
				continue
			}
			fmt.Printf("%s %s: %d created, %d updated\n", green("✓"), gh.FullName(), len(res.Created), len(res.Updated))
		}
		if failed {
			os.Exit(1)
		}
	},
}

// dryRunLabels reads real labels and prints writes instead of sending them.
type dryRunLabels struct {
	labelsync.Client
}

func (d dryRunLabels) CreateLabel(ctx context.Context, label types.Label) error {
	fmt.Printf("[dry-run] create label %q (#%s)\n", label.Name, label.Color)
	return nil
}

func (d dryRunLabels) UpdateLabel(ctx context.Context, label types.Label) error {
	fmt.Printf("[dry-run] update label %q (#%s)\n", label.Name, label.Color)
	return nil
}

func init() {
	rootCmd.AddCommand(syncLabelsCmd)
}
