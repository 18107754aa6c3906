// Package ci resolves the build status of a branch's remote tip against
// whatever continuous-integration system fronts it, normalizing every
// provider's vocabulary down to a single three-state contract.
package ci

import (
	"context"
	"errors"
)

// Status is the three-state outcome every provider must collapse its own
// vocabulary into. A provider reports no Status at all (see Provider.Status's
// ok return) when it has no opinion about a commit, rather than inventing a
// fourth "unknown" state.
type Status string

const (
	Green  Status = "green"
	Yellow Status = "yellow"
	Red    Status = "red"
)

// Provider resolves the CI status of a single remote-tracking branch's tip
// commit, addressed by remote name (as it appears in `git remote`) and commit
// hash. Implementations poll or cache as they see fit; Status must be safe
// for concurrent use.
type Provider interface {
	// Status reports the build outcome for commit sha on remote, or
	// ok == false if this provider has nothing to say about it (wrong
	// remote, unknown commit, no build yet).
	Status(ctx context.Context, remote, sha string) (status Status, ok bool, err error)
}

// Aggregate queries a fixed set of providers in order and returns the first
// one that has an opinion, so a repo wired to both a hosted and a
// self-hosted provider shows whichever actually built the commit. A
// provider's own failure is isolated to that provider: Status keeps trying
// the rest and reports an error only when every provider failed (a mix of
// failures and no-opinion answers yields no status and no error),
// mirroring the original's ThreadPool fetch that treats one backend's
// lookup failure as that backend having no opinion rather than aborting
// the whole poll.
type Aggregate struct {
	Providers []Provider
}

// PollTask adapts a Provider into the task function a polling trigger
// repeatedly invokes, so a model cell can memoize CI status and only
// invalidate when the provider's answer actually changes. The result is a
// *Status rather than a bare Status so a polling trigger comparing
// successive results with reflect.DeepEqual can tell "no opinion" (nil)
// apart from "green".
func PollTask(ctx context.Context, p Provider, remote, sha string) func() (any, error) {
	return func() (any, error) {
		status, ok, err := p.Status(ctx, remote, sha)
		if err != nil {
			return nil, err
		}
		if !ok {
			return (*Status)(nil), nil
		}
		return &status, nil
	}
}

func (a Aggregate) Status(ctx context.Context, remote, sha string) (Status, bool, error) {
	var errs []error
	for _, p := range a.Providers {
		status, ok, err := p.Status(ctx, remote, sha)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return status, true, nil
		}
	}
	if len(errs) > 0 && len(errs) == len(a.Providers) {
		return "", false, errors.Join(errs...)
	}
	return "", false, nil
}
