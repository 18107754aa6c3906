// Package model projects a local git repository onto the reactive
// kernel: branches and their commit history become cells that
// recompute only when the filesystem paths they depend on change.
package model

import (
	"context"
	"strings"
	"sync"
	"time"

	"branchgraph.dev/branchgraph/internal/errors"
	"branchgraph.dev/branchgraph/internal/kernel"
	"branchgraph.dev/branchgraph/internal/runner"
	"branchgraph.dev/branchgraph/internal/trigger"
)

// Repo is a live, reactive view of one repository's branch topology. It
// owns the kernel that every Branch's cells are registered against and
// the process runner used to query the repository.
type Repo struct {
	k        *kernel.Kernel
	dir      string
	git      *runner.Git
	mux      *trigger.Multiplexer
	debounce time.Duration

	gitDir *kernel.Cell // string

	head    *kernel.Cell // *Branch, nil if detached
	all     *kernel.Cell // []*Branch
	remotes *kernel.Cell // []*Branch

	mu       sync.Mutex
	branches map[string]*Branch
}

// New creates a Repo rooted at dir (any path inside a worktree or bare
// repository; the control directory itself is found with DiscoverGitDir
// while the Repo is constructed), with no debounce on its filesystem
// triggers.
func New(dir string) *Repo {
	return NewWithDebounce(dir, 0)
}

// NewWithDebounce is New with an explicit debounce interval applied to
// every filesystem trigger, coalescing a burst of ref/index writes (e.g.
// from a rebase) into a single invalidation.
func NewWithDebounce(dir string, debounce time.Duration) *Repo {
	r := &Repo{
		k:        kernel.NewKernel(),
		dir:      dir,
		git:      runner.NewGit(dir),
		mux:      trigger.NewMultiplexer(),
		debounce: debounce,
		branches: make(map[string]*Branch),
	}

	r.gitDir = r.k.NewCell("git_dir", r.readGitDir, kernel.NoopTrigger{})

	r.head = r.k.NewCell("HEAD", r.readHEAD, r.pathWatcher([]string{"HEAD"}, nil))
	r.all = r.k.NewCell("ALL", r.readALL, r.pathWatcher([]string{"refs/heads/*"}, nil))
	r.remotes = r.k.NewCell("REMOTES", r.readREMOTES, r.pathWatcher([]string{"refs/remotes/*"}, nil))

	return r
}

// Kernel returns the reactive kernel backing this repository. Callers
// drive the top-level render cell through it.
func (r *Repo) Kernel() *kernel.Kernel { return r.k }

func (r *Repo) pathWatcher(patterns []string, carrier trigger.Carrier) kernel.Trigger {
	root, err := r.gitDirValue()
	if err != nil {
		// git_dir couldn't be resolved yet (e.g. outside a repository);
		// fall back to a noop trigger so the cell still memoizes.
		return kernel.NoopTrigger{}
	}
	w := trigger.NewPathWatcherWithMultiplexer(r.mux, root, patterns, carrier)
	return w.WithDebounce(r.debounce).WithLockAwareness(root)
}

func (r *Repo) gitDirValue() (string, error) {
	v, err := r.gitDir.Read()
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Repo) readGitDir() (any, error) {
	dir, err := DiscoverGitDir(r.dir)
	if err != nil {
		return nil, err
	}
	return dir, nil
}

func (r *Repo) readHEAD() (any, error) {
	out, err := r.git.Command("rev-parse", "--abbrev-ref", "HEAD").Output(context.Background())
	if err != nil {
		return nil, wrapToolError("rev-parse --abbrev-ref HEAD", err)
	}
	if out == "HEAD" {
		// Detached HEAD: `--abbrev-ref HEAD` echoes the literal string
		// "HEAD" back when there is no branch to abbreviate to.
		return nil, nil
	}
	return r.branch(out), nil
}

func (r *Repo) readALL() (any, error) {
	var names []string
	err := r.git.Command("rev-parse", "--abbrev-ref", "--branches").Lines(context.Background(), func(line string) error {
		if line != "" {
			names = append(names, line)
		}
		return nil
	})
	if err != nil {
		return nil, wrapToolError("rev-parse --abbrev-ref --branches", err)
	}
	branches := make([]*Branch, 0, len(names))
	for _, name := range names {
		branches = append(branches, r.branch(name))
	}
	return branches, nil
}

func (r *Repo) readREMOTES() (any, error) {
	var names []string
	err := r.git.Command("rev-parse", "--abbrev-ref", "--remotes").Lines(context.Background(), func(line string) error {
		if line != "" {
			names = append(names, line)
		}
		return nil
	})
	if err != nil {
		return nil, wrapToolError("rev-parse --abbrev-ref --remotes", err)
	}

	allVal, err := r.all.Read()
	if err != nil {
		return nil, err
	}
	locals := make(map[string]struct{})
	for _, b := range allVal.([]*Branch) {
		locals[b.name] = struct{}{}
	}

	branches := make([]*Branch, 0, len(names))
	for _, name := range names {
		_, short, hasSlash := strings.Cut(name, "/")
		if !hasSlash {
			short = name
		}
		if _, ok := locals[short]; ok {
			branches = append(branches, r.branch(name))
		}
	}
	return branches, nil
}

// HEAD returns the branch HEAD currently points at, or nil if HEAD is
// detached.
func (r *Repo) HEAD() (*Branch, error) {
	v, err := r.head.Read()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*Branch), nil
}

// All returns every local branch.
func (r *Repo) All() ([]*Branch, error) {
	v, err := r.all.Read()
	if err != nil {
		return nil, err
	}
	return v.([]*Branch), nil
}

// Remotes returns every remote-tracking branch that shadows a local
// branch of the same short name.
func (r *Repo) Remotes() ([]*Branch, error) {
	v, err := r.remotes.Read()
	if err != nil {
		return nil, err
	}
	return v.([]*Branch), nil
}

// branch interns name to a single *Branch instance shared by every cell
// that refers to it, analogous to the teacher lineage's
// Branch._BRANCHES_BY_ID identity cache.
func (r *Repo) branch(name string) *Branch {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.branches[name]; ok {
		return b
	}
	b := newBranch(r, name)
	r.branches[name] = b
	return b
}

// Branch returns the interned Branch handle for name without querying
// the repository; the handle's cells are only evaluated on first Read.
func (r *Repo) Branch(name string) *Branch {
	return r.branch(name)
}

func wrapToolError(command string, err error) error {
	var exitErr *runner.ExitError
	if e, ok := err.(*runner.ExitError); ok {
		exitErr = e
		return errors.NewToolInvocationError(command, exitErr.Argv, exitErr.Stderr, err)
	}
	return errors.NewToolInvocationError(command, nil, "", err)
}
