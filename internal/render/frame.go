// Package render turns a model.Repo's reactive state into terminal output:
// a one-shot plain-text frame, or a github.com/charmbracelet/bubbletea
// program that redraws whenever the reactive kernel invalidates.
package render

import (
	"time"

	"branchgraph.dev/branchgraph/internal/ci"
	"branchgraph.dev/branchgraph/internal/kernel"
	"branchgraph.dev/branchgraph/internal/layout"
	"branchgraph.dev/branchgraph/internal/model"
)

// BranchView is everything a frame needs to know about one branch, read out
// of the reactive model once per frame.
type BranchView struct {
	Name      string
	IsHead    bool
	IsTrunk   bool
	Row       layout.Row
	Unmerged  int
	InSync    bool
	HasRemote bool
	CI        *ci.Status
	Err       error
}

// Frame is one fully laid-out snapshot of the repository, ready to render.
type Frame struct {
	Branches []BranchView
	Err      error
}

// CIStatusFunc resolves the CI status for a branch's remote tip, or
// (nil, nil) if no provider has an opinion. It is supplied by the caller so
// the frame cell itself stays agnostic to which providers (GitHub Checks,
// a self-hosted build server, or none in --local mode) are wired in.
type CIStatusFunc func(remote, sha string) (*ci.Status, error)

// BuildFrameCell constructs the top-level reactive cell a render program
// drives: reading it evaluates every branch's layout position and status
// badges, re-using whichever of the repo's per-branch cells are still
// valid and recomputing only what a trigger invalidated.
func BuildFrameCell(k *kernel.Kernel, repo *model.Repo, trunk string, ciStatus CIStatusFunc) *kernel.Cell {
	thunk := func() (any, error) {
		return buildFrame(repo, trunk, ciStatus)
	}
	return k.NewCell("frame", thunk, kernel.NoopTrigger{})
}

func buildFrame(repo *model.Repo, trunk string, ciStatus CIStatusFunc) (Frame, error) {
	all, err := repo.All()
	if err != nil {
		return Frame{}, err
	}

	head, err := repo.HEAD()
	if err != nil {
		return Frame{}, err
	}

	relevant, err := relevantBranches(all)
	if err != nil {
		return Frame{}, err
	}

	byName := make(map[string]*model.Branch, len(relevant))
	for _, b := range relevant {
		byName[b.Name()] = b
	}

	order, err := orderBranches(relevant)
	if err != nil {
		return Frame{}, err
	}

	parentsOf := func(name string) []string { return namesOf(byName[name], (*model.Branch).Parents) }
	childrenOf := func(name string) []string { return namesOf(byName[name], (*model.Branch).Children) }

	rows := layout.Layout(order, parentsOf, childrenOf)

	views := make([]BranchView, 0, len(order))
	for i, name := range order {
		b := byName[name]
		view := BranchView{
			Name:    name,
			IsHead:  head != nil && head.Name() == name,
			IsTrunk: name == trunk,
			Row:     rows[i],
		}

		if unmerged, uErr := b.Unmerged(); uErr == nil {
			view.Unmerged = unmerged
		} else {
			view.Err = uErr
		}

		if inSync, sErr := b.InSync(); sErr == nil {
			view.InSync = inSync
		}

		if upstream, uErr := b.Upstream(); uErr == nil && upstream != nil {
			view.HasRemote = true
			if ciStatus != nil {
				if commit, ok, cErr := upstream.LatestCommit(); cErr == nil && ok {
					remote, _, _ := splitRemoteName(upstream.Name())
					if status, err := ciStatus(remote, commit.Hash); err == nil {
						view.CI = status
					}
				}
			}
		}

		views = append(views, view)
	}

	return Frame{Branches: views}, nil
}

// relevantBranches extends all with each branch's upstream whenever the
// upstream's short name differs from the owning branch's own name, so a
// remote-tracking branch renamed relative to its local counterpart still
// gets a node in the graph instead of silently vanishing from the layout,
// mirroring layoutAllBranches' "relevantBranches.add(branch.upstream)"
// treatment of that case.
func relevantBranches(all []*model.Branch) ([]*model.Branch, error) {
	byName := make(map[string]*model.Branch, len(all))
	relevant := make([]*model.Branch, 0, len(all))
	for _, b := range all {
		byName[b.Name()] = b
		relevant = append(relevant, b)
	}

	for _, b := range all {
		upstream, err := b.Upstream()
		if err != nil {
			return nil, err
		}
		if upstream == nil {
			continue
		}
		if _, ok := byName[upstream.Name()]; ok {
			continue
		}
		_, short, _ := splitRemoteName(upstream.Name())
		if short == b.Name() {
			continue
		}
		byName[upstream.Name()] = upstream
		relevant = append(relevant, upstream)
	}
	return relevant, nil
}

// orderBranches reads every branch's modtime and produces the display
// order layout.Layout requires: descendants before ancestors.
func orderBranches(all []*model.Branch) ([]string, error) {
	names := make([]string, len(all))
	byName := make(map[string]*model.Branch, len(all))
	for i, b := range all {
		names[i] = b.Name()
		byName[b.Name()] = b
	}

	var firstErr error
	modtimeOf := func(name string) time.Time {
		mt, err := byName[name].Modtime()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return mt
	}
	parentsOf := func(name string) []string { return namesOf(byName[name], (*model.Branch).Parents) }
	childrenOf := func(name string) []string { return namesOf(byName[name], (*model.Branch).Children) }

	order := layout.Order(names, modtimeOf, parentsOf, childrenOf)
	return order, firstErr
}

func namesOf(b *model.Branch, get func(*model.Branch) ([]*model.Branch, error)) []string {
	if b == nil {
		return nil
	}
	related, err := get(b)
	if err != nil {
		return nil
	}
	names := make([]string, len(related))
	for i, r := range related {
		names[i] = r.Name()
	}
	return names
}

func splitRemoteName(fullName string) (remote, shortName string, ok bool) {
	for i := 0; i < len(fullName); i++ {
		if fullName[i] == '/' {
			return fullName[:i], fullName[i+1:], true
		}
	}
	return "", fullName, false
}
