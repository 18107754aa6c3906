// Package testrepo builds throwaway git repositories on disk for tests
// that exercise internal/model, internal/render, and internal/ci against
// real git output rather than fixtures.
package testrepo

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Repo wraps a git repository created under a test's temp directory.
type Repo struct {
	t   *testing.T
	Dir string
}

// New initializes an empty repository with trunk as its initial branch.
func New(t *testing.T, trunk string) *Repo {
	t.Helper()
	dir := t.TempDir()
	r := &Repo{t: t, Dir: dir}
	r.run("init", "-b", trunk, dir)
	r.runIn(dir, "config", "user.name", "branchgraph-test")
	r.runIn(dir, "config", "user.email", "branchgraph-test@example.com")
	r.runIn(dir, "config", "commit.gpgsign", "false")
	return r
}

func (r *Repo) run(args ...string) string {
	r.t.Helper()
	return r.runIn("", args...)
}

func (r *Repo) runIn(dir string, args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	} else {
		cmd.Dir = r.Dir
	}
	out, err := cmd.CombinedOutput()
	require.NoError(r.t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

// Commit creates an empty commit with the given subject on the current
// branch.
func (r *Repo) Commit(subject string) string {
	r.t.Helper()
	r.runIn(r.Dir, "commit", "--allow-empty", "-m", subject)
	return r.runIn(r.Dir, "rev-parse", "HEAD")
}

// Branch creates and checks out a new branch from the current HEAD.
func (r *Repo) Branch(name string) {
	r.t.Helper()
	r.runIn(r.Dir, "checkout", "-b", name)
}

// Checkout switches to an existing branch.
func (r *Repo) Checkout(name string) {
	r.t.Helper()
	r.runIn(r.Dir, "checkout", name)
}

// SetUpstream configures branch's upstream tracking ref without requiring
// a real remote, by writing the branch config directly.
func (r *Repo) SetUpstream(branch, upstreamRef string) {
	r.t.Helper()
	r.runIn(r.Dir, "config", fmt.Sprintf("branch.%s.remote", branch), ".")
	r.runIn(r.Dir, "config", fmt.Sprintf("branch.%s.merge", branch), "refs/heads/"+upstreamRef)
}

// Merge merges `from` into the current branch with an explicit subject,
// so tests can control the merge-commit template exactly.
func (r *Repo) Merge(from, subject string) string {
	r.t.Helper()
	r.runIn(r.Dir, "merge", "--no-ff", "-m", subject, from)
	return r.runIn(r.Dir, "rev-parse", "HEAD")
}

// Hash returns the commit hash a ref currently resolves to.
func (r *Repo) Hash(ref string) string {
	r.t.Helper()
	return r.runIn(r.Dir, "rev-parse", ref)
}

// AddRemoteBranch fabricates a remote-tracking ref (e.g.
// refs/remotes/origin/feature) pointing at hash, without a real remote.
func (r *Repo) AddRemoteBranch(remote, branch, hash string) {
	r.t.Helper()
	ref := fmt.Sprintf("refs/remotes/%s/%s", remote, branch)
	r.runIn(r.Dir, "update-ref", ref, hash)
	r.runIn(r.Dir, "config", fmt.Sprintf("remote.%s.url", remote), filepath.Join(r.Dir, ".git"))
}

// MoveRef force-updates a branch ref to hash without touching the
// working tree, simulating an external rebase for reflog-based tests.
func (r *Repo) MoveRef(branch, hash string) {
	r.t.Helper()
	r.runIn(r.Dir, "update-ref", "-m", "testrepo: simulated rebase", "refs/heads/"+branch, hash)
}

// WriteReflogEntry appends a synthetic reflog line for branch by moving
// its ref to hash through update-ref, which git records in the reflog
// automatically.
func (r *Repo) WriteReflogEntry(branch, hash string) {
	r.MoveRef(branch, hash)
}

// GitDir returns the repository's control directory.
func (r *Repo) GitDir() string {
	r.t.Helper()
	return filepath.Join(r.Dir, ".git")
}
