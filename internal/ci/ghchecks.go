package ci

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"branchgraph.dev/branchgraph/internal/runner"
)

// githubSlugPattern matches both the SSH and HTTPS forms of a github.com
// remote URL, capturing "owner/repo".
var githubSlugPattern = regexp.MustCompile(`^(?:git@github\.com:|https://github\.com/)([^/]+/[^/]+?)(?:\.git)?$`)

// ResolveRemoteSlugs reads every remote.<name>.url from the repository's git
// config and returns the github.com "owner/repo" slug for whichever remotes
// point at GitHub, keyed by remote name. Remotes pointing elsewhere are
// silently omitted, mirroring the original client's tolerance for a mix of
// GitHub and non-GitHub remotes on the same repository.
func ResolveRemoteSlugs(ctx context.Context, g *runner.Git) (map[string]string, error) {
	slugs := make(map[string]string)
	err := g.Command("config", "--get-regexp", `remote\..*\.url`).Lines(ctx, func(l string) error {
		key, url, ok := strings.Cut(l, " ")
		if !ok {
			return nil
		}
		name := remoteNameFromConfigKey(key)
		if m := githubSlugPattern.FindStringSubmatch(url); m != nil {
			slugs[name] = m[1]
		}
		return nil
	})
	if err != nil {
		if isNoConfigMatch(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return slugs, nil
}

// remoteNameFromConfigKey extracts "origin" from "remote.origin.url".
func remoteNameFromConfigKey(key string) string {
	rest := strings.TrimPrefix(key, "remote.")
	rest = strings.TrimSuffix(rest, ".url")
	return rest
}

func isNoConfigMatch(err error) bool {
	var exitErr *runner.ExitError
	return asExitError(err, &exitErr) && exitErr.ExitCode == 1
}

func asExitError(err error, target **runner.ExitError) bool {
	for err != nil {
		if e, ok := err.(*runner.ExitError); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// NewGitHubClient builds an authenticated go-github client from a personal
// access token, through a static oauth2 token source.
func NewGitHubClient(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return github.NewClient(tc)
}

// GitHubChecksProvider resolves status from GitHub's Checks API: the set of
// check runs GitHub (or any app reporting into it, e.g. a CI workflow)
// recorded against a commit.
type GitHubChecksProvider struct {
	client *github.Client
	slugs  map[string]string // remote name -> "owner/repo"
}

func NewGitHubChecksProvider(client *github.Client, slugs map[string]string) *GitHubChecksProvider {
	return &GitHubChecksProvider{client: client, slugs: slugs}
}

func (p *GitHubChecksProvider) Status(ctx context.Context, remote, sha string) (Status, bool, error) {
	slug, ok := p.slugs[remote]
	if !ok {
		return "", false, nil
	}
	owner, repo, ok := strings.Cut(slug, "/")
	if !ok {
		return "", false, nil
	}

	result, _, err := p.client.Checks.ListCheckRunsForRef(ctx, owner, repo, sha, nil)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("listing check runs for %s@%s: %w", slug, sha, err)
	}
	if result.GetTotal() == 0 {
		return "", false, nil
	}

	return worstStatus(result.CheckRuns), true, nil
}

// worstStatus reduces a commit's check runs to the single status shown for
// the branch: red if anything failed, yellow if anything is still running,
// green only once every run has concluded successfully.
func worstStatus(runs []*github.CheckRun) Status {
	sawPending := false
	for _, run := range runs {
		if run.GetStatus() != "completed" {
			sawPending = true
			continue
		}
		switch run.GetConclusion() {
		case "success", "neutral", "skipped":
			// contributes nothing but green
		default:
			return Red
		}
	}
	if sawPending {
		return Yellow
	}
	return Green
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	for e := err; e != nil; {
		if r, ok := e.(*github.ErrorResponse); ok {
			ghErr = r
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return ghErr != nil && ghErr.Response != nil && ghErr.Response.StatusCode == 404
}
