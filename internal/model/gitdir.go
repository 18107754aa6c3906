package model

import (
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"branchgraph.dev/branchgraph/internal/errors"
)

// DiscoverGitDir finds the control directory for the repository containing
// dir without shelling out, walking up from dir the same way `git
// rev-parse --git-dir` does. Every subsequent read in this package still
// goes through the real git binary (see internal/runner): this one lookup
// is the sole exception, used to seed the path watcher's root and, by
// callers such as cmd/branchgraph, to locate the per-repo config file.
func DiscoverGitDir(dir string) (string, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", errors.NewToolInvocationError("rev-parse --git-dir", []string{"git", "rev-parse", "--git-dir"}, err.Error(), err)
	}
	fsStorer, ok := repo.Storer.(*filesystem.Storage)
	if !ok {
		return "", errors.NewToolInvocationError("rev-parse --git-dir", nil, "repository storage is not filesystem-backed", gogit.ErrRepositoryNotExists)
	}
	return fsStorer.Filesystem().Root(), nil
}
