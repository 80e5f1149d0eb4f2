package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/flakewatch/internal/event"
	"github.com/steveyegge/flakewatch/internal/reconcile"
	"github.com/steveyegge/flakewatch/internal/types"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <results.json>",
	Short: "Reconcile a build's test results with the repository's issues",
	Long: `Read test results (a JSON object with "passes" and "failures" lists) and
update the issues of the repository to match.

Use "-" to read the results from stdin.

Examples:
  flakewatch reconcile --repo acme/widgets --commit 1a2b3c --build-url https://ci/b/7 results.json
  go-junit-report ... | flakewatch reconcile --repo acme/widgets --commit $SHA --build-url $URL -`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo, _ := cmd.Flags().GetString("repo")
		commit, _ := cmd.Flags().GetString("commit")
		buildURL, _ := cmd.Flags().GetString("build-url")
		configPath, _ := cmd.Flags().GetString("config")

		in, closeIn, err := openInput(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer closeIn()

		results, err := event.DecodeResults(in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		ev := &event.Event{Repo: repo, Commit: commit, BuildURL: buildURL, Results: results}

		ctx := context.Background()
		report, err := handleEvent(ctx, current, ev, configPath)
		exitWithReport(report, err)
	},
}

var handleCmd = &cobra.Command{
	Use:   "handle <event.json>",
	Short: "Process one build event",
	Long: `Process a build event as delivered by CI: a JSON object with repo, commit,
buildURL and one of results, xunitXML or testsFailed.

Events without test data are acknowledged and ignored. Use "-" to read the
event from stdin.

Examples:
  flakewatch handle event.json
  curl -s $HOOK_PAYLOAD | flakewatch handle -`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")

		in, closeIn, err := openInput(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer closeIn()

		ev, err := event.Decode(in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		report, err := handleEvent(ctx, current, ev, configPath)
		exitWithReport(report, err)
	},
}

// handleEvent converts ev to a build and reconciles it. A nil report with
// a nil error means the event carried no test data.
func handleEvent(ctx context.Context, s settings, ev *event.Event, configPath string) (*reconcile.Report, error) {
	owner, repo, err := event.SplitRepo(ev.Repo)
	if err != nil {
		return nil, err
	}
	build, err := ev.ToBuild(nil)
	if err != nil {
		return nil, err
	}
	if build == nil {
		s.logger.Info("event has no test results, ignoring", "repo", ev.Repo, "commit", ev.Commit)
		return nil, nil
	}
	return reconcileBuild(ctx, s, owner, repo, build, configPath)
}

func reconcileBuild(ctx context.Context, s settings, owner, repo string, build *types.BuildInput, configPath string) (*reconcile.Report, error) {
	b, err := openBackend(ctx, s, owner, repo)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	cfg, err := b.repoConfig(ctx, s, owner, repo, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config for %s/%s: %w", owner, repo, err)
	}

	engine, err := reconcile.New(reconcile.Options{
		Tracker:     b.tracker,
		Locker:      b.locker,
		Config:      cfg,
		Concurrency: s.service.Concurrency,
		Logger:      s.logger.With("repo", owner+"/"+repo),
	})
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx, build)
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func exitWithReport(report *reconcile.Report, err error) {
	red := color.New(color.FgRed).SprintFunc()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s Error: %v\n", red("✗"), err)
		os.Exit(1)
	}
	if report == nil {
		fmt.Println("No test results in event; nothing to do")
		return
	}
	renderReport(os.Stdout, report)
	if report.Err() != nil {
		os.Exit(1)
	}
}

func init() {
	for _, cmd := range []*cobra.Command{reconcileCmd, handleCmd} {
		cmd.Flags().String("config", "", "Read the repo config from this file instead of the repository")
		rootCmd.AddCommand(cmd)
	}
	reconcileCmd.Flags().String("repo", "", "Repository as owner/name (required)")
	reconcileCmd.Flags().String("commit", "", "Commit the build ran at")
	reconcileCmd.Flags().String("build-url", "", "Link to the build")
	_ = reconcileCmd.MarkFlagRequired("repo")
}
