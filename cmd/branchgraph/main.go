// Package main is the entry point for branchgraph, a terminal
// visualization of local git branch topology.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"branchgraph.dev/branchgraph/internal/ci"
	"branchgraph.dev/branchgraph/internal/config"
	"branchgraph.dev/branchgraph/internal/logging"
	"branchgraph.dev/branchgraph/internal/model"
	"branchgraph.dev/branchgraph/internal/render"
	"branchgraph.dev/branchgraph/internal/runner"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		watch    bool
		local    bool
		debounce string
		repoPath string
	)

	cmd := &cobra.Command{
		Use:   "branchgraph",
		Short: "Visualize local git branch topology as a live DAG",
		Long: `branchgraph renders the local repository's branches as a DAG, with
remote-sync and CI-status badges, either as a single frame or as a
continuously updating terminal view.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), repoPath, watch, local, debounce)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "continuously redraw as the repository changes")
	cmd.Flags().BoolVarP(&local, "local", "l", false, "skip CI status providers and show only local/remote state")
	cmd.Flags().StringVar(&debounce, "debounce", "", "override the filesystem-watch debounce interval (e.g. 250ms)")
	cmd.Flags().StringVar(&repoPath, "repo", ".", "path to the git repository to visualize")

	return cmd
}

func run(ctx context.Context, repoPath string, watch, local bool, debounceFlag string) error {
	logger, err := logging.New(logging.DefaultLogFilePath())
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer logger.Close()

	gitDir, err := model.DiscoverGitDir(repoPath)
	if err != nil {
		return fmt.Errorf("resolving git directory: %w", err)
	}
	cfg, err := config.Load(gitDir)
	if err != nil {
		return fmt.Errorf("loading repo config: %w", err)
	}

	debounce := cfg.Debounce()
	if debounceFlag != "" {
		d, err := time.ParseDuration(debounceFlag)
		if err != nil {
			return fmt.Errorf("parsing --debounce: %w", err)
		}
		debounce = d
	}
	repo := model.NewWithDebounce(repoPath, debounce)

	ciStatus := buildCIStatusFunc(ctx, repoPath, local, cfg, logger)
	frameCell := render.BuildFrameCell(repo.Kernel(), repo, cfg.Trunk(), ciStatus)

	if watch && render.IsTTY() {
		logger.SetQuiet(true)
		ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
		defer cancel()
		return render.Run(ctx, repo.Kernel(), frameCell)
	}

	out, err := render.RenderOnce(frameCell)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// buildCIStatusFunc wires whichever CI providers the repository's remotes
// and config support into a single lookup, or returns nil in --local mode
// so the frame builder skips CI entirely.
func buildCIStatusFunc(ctx context.Context, repoPath string, local bool, cfg *config.RepoConfig, logger *logging.Logger) render.CIStatusFunc {
	if local {
		return nil
	}

	g := runner.NewGit(repoPath)
	var providers []ci.Provider

	if cfg.GitHubCIEnabled() {
		if token := os.Getenv("GITHUB_TOKEN"); token != "" {
			slugs, err := ci.ResolveRemoteSlugs(ctx, g)
			if err != nil {
				logger.Warn("resolving GitHub remotes: %v", err)
			} else if len(slugs) > 0 {
				client := ci.NewGitHubClient(ctx, token)
				providers = append(providers, ci.NewGitHubChecksProvider(client, slugs))
			}
		}
	}

	urls, err := ci.ResolveBuildServerURLs(ctx, g)
	if err != nil {
		logger.Warn("resolving build-server remotes: %v", err)
	} else if len(urls) > 0 {
		providers = append(providers, ci.NewBuildServerProvider(nil, urls, "", ""))
	}

	if len(providers) == 0 {
		return nil
	}

	agg := ci.Aggregate{Providers: providers}
	return func(remote, sha string) (*ci.Status, error) {
		status, ok, err := agg.Status(ctx, remote, sha)
		if err != nil || !ok {
			return nil, err
		}
		return &status, nil
	}
}
