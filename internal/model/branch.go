package model

import (
	"context"
	goerrors "errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"branchgraph.dev/branchgraph/internal/kernel"
	"branchgraph.dev/branchgraph/internal/trigger"
)

// Branch is a single named ref, interned per Repo so that every cell
// referring to the same branch name shares one set of cached cells.
type Branch struct {
	repo *Repo
	name string

	fullName       *kernel.Cell // string
	refLog         *kernel.Cell // []RefLogEntry
	allCommits     *kernel.Cell // []Commit
	upstream       *kernel.Cell // *Branch, nil if none
	upstreamCommit *kernel.Cell // *Commit, nil if none
	commits        *kernel.Cell // []Commit
	parents        *kernel.Cell // []*Branch
	children       *kernel.Cell // []*Branch
	modtime        *kernel.Cell // time.Time, zero if unknown
	unmerged       *kernel.Cell // int
	inSync         *kernel.Cell // bool
}

func newBranch(r *Repo, name string) *Branch {
	b := &Branch{repo: r, name: name}

	b.fullName = r.k.NewCell("fullName:"+name, b.readFullName, kernel.NoopTrigger{})
	b.refLog = r.k.NewCell("refLog:"+name, b.readRefLog, r.pathWatcher([]string{"logs/%fullName%"}, b.carrier()))
	b.allCommits = r.k.NewCell("allCommits:"+name, b.readAllCommits, r.pathWatcher([]string{"%fullName%"}, b.carrier()))
	b.upstream = r.k.NewCell("upstream:"+name, b.readUpstream, r.pathWatcher([]string{"config"}, nil))
	b.upstreamCommit = r.k.NewCell("upstreamCommit:"+name, b.readUpstreamCommit, kernel.NoopTrigger{})
	b.commits = r.k.NewCell("commits:"+name, b.readCommits, kernel.NoopTrigger{})
	b.parents = r.k.NewCell("parents:"+name, b.readParents, kernel.NoopTrigger{})
	b.children = r.k.NewCell("children:"+name, b.readChildren, kernel.NoopTrigger{})
	b.modtime = r.k.NewCell("modtime:"+name, b.readModtime, r.pathWatcher([]string{"refs/heads/%name%"}, b.carrier()))
	b.unmerged = r.k.NewCell("unmerged:"+name, b.readUnmerged, r.pathWatcher([]string{"refs/heads/%name%"}, b.carrier()))
	// inSync has no trigger of its own: it is recomputed purely through
	// transitive invalidation of repo.Remotes() (path-watched on
	// refs/remotes/*) and b.allCommits (path-watched on %fullName%).
	b.inSync = r.k.NewCell("inSync:"+name, b.readInSync, kernel.NoopTrigger{})

	return b
}

// Name is the branch's short ref name.
func (b *Branch) Name() string { return b.name }

func (b *Branch) carrier() trigger.Carrier {
	return func(placeholder string) (string, bool) {
		switch placeholder {
		case "name":
			return b.name, true
		case "fullName":
			v, err := b.fullName.Read()
			if err != nil {
				return "", false
			}
			return v.(string), true
		default:
			return "", false
		}
	}
}

func (b *Branch) readFullName() (any, error) {
	out, err := b.repo.git.Command("rev-parse", "--symbolic-full-name", b.name).Output(context.Background())
	if err != nil {
		return nil, wrapToolError("rev-parse --symbolic-full-name", err)
	}
	return out, nil
}

var reflogLinePattern = regexp.MustCompile(`@\{(\d+) .*\} (\w+)`)

func (b *Branch) readRefLog() (any, error) {
	var entries []RefLogEntry
	err := b.repo.git.Command("log", "-g", b.name+"@{now}", "--date=raw", "--format=%gd %H").
		Lines(context.Background(), func(line string) error {
			m := reflogLinePattern.FindStringSubmatch(line)
			if m == nil {
				return nil
			}
			ts, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return nil
			}
			entries = append(entries, RefLogEntry{Timestamp: ts, Hash: m[2]})
			return nil
		})
	if err != nil {
		// A failed reflog fetch is treated as an empty reflog, per §7's
		// "Specific callers may recover" clause.
		return []RefLogEntry(nil), nil
	}
	return entries, nil
}

func (b *Branch) readAllCommits() (any, error) {
	var commits []Commit
	err := b.repo.git.Command("log", "--first-parent", "--format=%H:%P:%s", b.name, "--").
		Lines(context.Background(), func(line string) error {
			hash, rest, ok := strings.Cut(line, ":")
			if !ok {
				return nil
			}
			parentField, subject, ok := strings.Cut(rest, ":")
			if !ok {
				return nil
			}
			var secondary []string
			fields := strings.Fields(parentField)
			if len(fields) > 1 {
				secondary = fields[1:]
			}
			commits = append(commits, Commit{Hash: hash, Subject: subject, SecondaryParents: secondary})
			return nil
		})
	if err != nil {
		return nil, wrapToolError("log --first-parent", err)
	}
	return commits, nil
}

// AllCommits returns every commit reachable from this branch via its
// first-parent chain, newest first.
func (b *Branch) AllCommits() ([]Commit, error) {
	v, err := b.allCommits.Read()
	if err != nil {
		return nil, err
	}
	return v.([]Commit), nil
}

// LatestCommit returns the tip of AllCommits, or the zero Commit with
// ok=false if the branch has no commits.
func (b *Branch) LatestCommit() (Commit, bool, error) {
	cs, err := b.AllCommits()
	if err != nil {
		return Commit{}, false, err
	}
	if len(cs) == 0 {
		return Commit{}, false, nil
	}
	return cs[0], true, nil
}

func (b *Branch) readUpstream() (any, error) {
	out, err := b.repo.git.Command("rev-parse", "--abbrev-ref", b.name+"@{upstream}").Output(context.Background())
	if err != nil {
		// No upstream configured is not a tool failure worth
		// propagating: it is the expected shape of a branch with no
		// tracking ref.
		return (*Branch)(nil), nil
	}
	return b.repo.branch(out), nil
}

// Upstream returns the branch this one tracks, or nil if none is set.
func (b *Branch) Upstream() (*Branch, error) {
	v, err := b.upstream.Read()
	if err != nil {
		return nil, err
	}
	return v.(*Branch), nil
}

func (b *Branch) readUpstreamCommit() (any, error) {
	upstream, err := b.Upstream()
	if err != nil {
		return nil, err
	}
	if upstream == nil {
		return (*Commit)(nil), nil
	}

	commits, err := b.AllCommits()
	if err != nil {
		return nil, err
	}
	commitHashes := make(map[string]struct{}, len(commits))
	for _, c := range commits {
		commitHashes[c.Hash] = struct{}{}
	}

	upstreamRefLogVal, err := upstream.refLog.Read()
	if err != nil {
		return nil, err
	}
	var firstUpstreamReference string
	for _, e := range upstreamRefLogVal.([]RefLogEntry) {
		if _, ok := commitHashes[e.Hash]; ok {
			firstUpstreamReference = e.Hash
			break
		}
	}

	upstreamCommits, err := upstream.AllCommits()
	if err != nil {
		return nil, err
	}
	upstreamHashes := make(map[string]struct{}, len(upstreamCommits))
	for _, c := range upstreamCommits {
		upstreamHashes[c.Hash] = struct{}{}
	}

	for i := range commits {
		c := commits[i]
		if _, ok := upstreamHashes[c.Hash]; ok || (firstUpstreamReference != "" && c.Hash == firstUpstreamReference) {
			return &c, nil
		}
	}
	return (*Commit)(nil), nil
}

// UpstreamCommit returns the most recent commit this branch shares with
// its upstream, accounting for a rebased upstream via its reflog. Returns
// nil if there is no upstream or no shared commit was found.
func (b *Branch) UpstreamCommit() (*Commit, error) {
	v, err := b.upstreamCommit.Read()
	if err != nil {
		return nil, err
	}
	return v.(*Commit), nil
}

func (b *Branch) readCommits() (any, error) {
	allCommits, err := b.AllCommits()
	if err != nil {
		return nil, err
	}
	upstreamCommit, err := b.UpstreamCommit()
	if err != nil {
		return nil, err
	}

	decorated := make([]Commit, 0, len(allCommits))
	for _, c := range allCommits {
		if upstreamCommit != nil && c.Hash == upstreamCommit.Hash {
			break
		}
		names := mergedBranchNames(c.Subject)
		if len(names) > 0 {
			branches := make([]*Branch, 0, len(names))
			for _, n := range names {
				branches = append(branches, b.repo.branch(n))
			}
			c.MergedBranches = branches
		}
		decorated = append(decorated, c)
	}
	return decorated, nil
}

// Commits returns every commit made to this branch since it diverged
// from its upstream, with merge commits decorated with the branches
// their subject line names.
func (b *Branch) Commits() ([]Commit, error) {
	v, err := b.commits.Read()
	if err != nil {
		return nil, err
	}
	return v.([]Commit), nil
}

func (b *Branch) readParents() (any, error) {
	upstream, err := b.Upstream()
	if err != nil {
		return nil, err
	}
	if upstream == nil {
		return []*Branch(nil), nil
	}

	commits, err := b.Commits()
	if err != nil {
		return nil, err
	}
	seen := make(map[*Branch]struct{})
	var parents []*Branch
	for _, c := range commits {
		for _, p := range c.MergedBranches {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				parents = append(parents, p)
			}
		}
	}
	if _, ok := seen[upstream]; !ok {
		parents = append(parents, upstream)
	}
	return parents, nil
}

// Parents returns every branch this one descends from, whether by
// upstream tracking or by merge. A branch with no upstream has no parents,
// whatever merges its history contains.
func (b *Branch) Parents() ([]*Branch, error) {
	v, err := b.parents.Read()
	if err != nil {
		return nil, err
	}
	return v.([]*Branch), nil
}

func (b *Branch) readChildren() (any, error) {
	all, err := b.repo.All()
	if err != nil {
		return nil, err
	}
	var children []*Branch
	for _, other := range all {
		parents, err := other.Parents()
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if p == b {
				children = append(children, other)
				break
			}
		}
	}
	return children, nil
}

// Children returns every branch that has this branch as an upstream or
// merge parent.
func (b *Branch) Children() ([]*Branch, error) {
	v, err := b.children.Read()
	if err != nil {
		return nil, err
	}
	return v.([]*Branch), nil
}

// errStopIteration halts Lines iteration once readModtime finds its
// answer within the first five commits; it is never returned to a
// caller.
var errStopIteration = goerrors.New("stop iteration")

func (b *Branch) readModtime() (any, error) {
	var result time.Time
	err := b.repo.git.Command("log", "-n5", "--format=%at", b.name, "--").
		Lines(context.Background(), func(line string) error {
			ts, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
			if err != nil {
				return nil
			}
			if ts == 1 {
				// Sentinel value used by some git builds for
				// unresolvable timestamps; skip and keep looking.
				return nil
			}
			result = time.Unix(ts, 0).UTC()
			return errStopIteration
		})
	if err != nil && err != errStopIteration {
		return nil, wrapToolError("log -n5 --format=%at", err)
	}
	return result, nil
}

// Modtime is the timestamp of this branch's latest commit, or the zero
// time if it could not be determined from the five most recent commits.
func (b *Branch) Modtime() (time.Time, error) {
	v, err := b.modtime.Read()
	if err != nil {
		return time.Time{}, err
	}
	return v.(time.Time), nil
}

func (b *Branch) readUnmerged() (any, error) {
	upstream, err := b.Upstream()
	if err != nil {
		return nil, err
	}
	if upstream == nil {
		return 0, nil
	}

	allCommits, err := b.AllCommits()
	if err != nil {
		return nil, err
	}
	reachable := make(map[string]struct{}, len(allCommits))
	for _, c := range allCommits {
		reachable[c.Hash] = struct{}{}
	}

	parents, err := b.Parents()
	if err != nil {
		return nil, err
	}
	upstreamCommit, err := b.UpstreamCommit()
	if err != nil {
		return nil, err
	}

	if len(parents) > 1 {
		for _, c := range allCommits {
			if upstreamCommit != nil && c.Hash == upstreamCommit.Hash {
				break
			}
			for _, rev := range c.SecondaryParents {
				var hashes []string
				lerr := b.repo.git.Command("log", "--first-parent", "--format=%H", rev).
					Lines(context.Background(), func(line string) error {
						if line != "" {
							hashes = append(hashes, line)
						}
						return nil
					})
				if lerr != nil {
					continue
				}
				for _, h := range hashes {
					reachable[h] = struct{}{}
				}
			}
		}
	}

	parentCommits := make(map[string]struct{})
	for _, p := range parents {
		pCommits, err := p.AllCommits()
		if err != nil {
			return nil, err
		}
		for _, c := range pCommits {
			if _, ok := reachable[c.Hash]; ok {
				break
			}
			parentCommits[c.Hash] = struct{}{}
		}
	}
	return len(parentCommits), nil
}

// Unmerged is the number of commits on this branch's parents that have
// not yet been incorporated here.
func (b *Branch) Unmerged() (int, error) {
	v, err := b.unmerged.Read()
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (b *Branch) readInSync() (any, error) {
	latest, ok, err := b.LatestCommit()
	if err != nil {
		return nil, err
	}
	if !ok {
		return true, nil
	}

	remotes, err := b.repo.Remotes()
	if err != nil {
		return nil, err
	}
	for _, r := range remotes {
		_, short, hasSlash := strings.Cut(r.name, "/")
		if !hasSlash {
			short = r.name
		}
		if short != b.name {
			continue
		}
		rLatest, rok, err := r.LatestCommit()
		if err != nil {
			return nil, err
		}
		if !rok || rLatest.Hash != latest.Hash {
			return false, nil
		}
	}
	return true, nil
}

// InSync reports whether every remote-tracking branch matching this
// branch's name has the same tip commit as this branch.
func (b *Branch) InSync() (bool, error) {
	v, err := b.inSync.Read()
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
