package layout

import (
	"sort"
	"time"
)

// blockerMap resolves each branch to its "blocker": the newest (by
// modtime) of its transitive descendants still present in the map, or
// itself if it has no children or none remain. This mirrors the teacher
// lineage's BranchBlockers, which exists so that a branch is never
// emitted before anything stacked on top of it.
type blockerMap[N comparable] struct {
	set         map[N]struct{}
	childrenOf  func(N) []N
	modtimeOf   func(N) time.Time
	descendants map[N][]N // cached, sorted oldest-to-newest
}

func newBlockerMap[N comparable](branches []N, childrenOf func(N) []N, modtimeOf func(N) time.Time) *blockerMap[N] {
	set := make(map[N]struct{}, len(branches))
	for _, b := range branches {
		set[b] = struct{}{}
	}
	return &blockerMap[N]{set: set, childrenOf: childrenOf, modtimeOf: modtimeOf, descendants: make(map[N][]N)}
}

func (m *blockerMap[N]) contains(b N) bool {
	_, ok := m.set[b]
	return ok
}

func (m *blockerMap[N]) resolve(b N) N {
	if len(m.childrenOf(b)) == 0 {
		return b
	}
	descendants, ok := m.descendants[b]
	if !ok {
		descendants = allDescendants(b, m.childrenOf)
		sort.Slice(descendants, func(i, j int) bool {
			return m.modtimeOf(descendants[i]).Before(m.modtimeOf(descendants[j]))
		})
	}
	for len(descendants) > 0 && !m.contains(descendants[len(descendants)-1]) {
		descendants = descendants[:len(descendants)-1]
	}
	m.descendants[b] = descendants
	if len(descendants) == 0 {
		return b
	}
	return m.resolve(descendants[len(descendants)-1])
}

func (m *blockerMap[N]) delete(b N) {
	delete(m.set, b)
	delete(m.descendants, b)
}

func allDescendants[N comparable](root N, childrenOf func(N) []N) []N {
	seen := make(map[N]struct{})
	var out []N
	todo := []N{root}
	for len(todo) > 0 {
		b := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		for _, c := range childrenOf(b) {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				out = append(out, c)
				todo = append(todo, c)
			}
		}
	}
	return out
}

// Order produces a display sequence satisfying Layout's precondition
// that every branch's parents already have a column by the time the
// branch itself is emitted — equivalently, every branch's transitive
// descendants are emitted before it. It implements the teacher lineage's
// PriorityBranchIterator over a BranchBlockers map: branches are visited
// newest-modtime-first, except that once a branch is emitted its parents
// jump the queue so a stack's branches come out contiguously.
func Order[N comparable](branches []N, modtimeOf func(N) time.Time, parentsOf, childrenOf func(N) []N) []N {
	blockers := newBlockerMap(branches, childrenOf, modtimeOf)

	queue := append([]N(nil), branches...)
	sort.Slice(queue, func(i, j int) bool {
		return modtimeOf(queue[i]).Before(modtimeOf(queue[j]))
	})

	var priorities []N
	pushedToPriorities := make(map[N]struct{})

	result := make([]N, 0, len(branches))
	for {
		for len(priorities) > 0 && !blockers.contains(priorities[len(priorities)-1]) {
			priorities = priorities[:len(priorities)-1]
		}
		for len(queue) > 0 && !blockers.contains(queue[len(queue)-1]) {
			queue = queue[:len(queue)-1]
		}

		var candidate N
		switch {
		case len(priorities) > 0:
			candidate = priorities[len(priorities)-1]
		case len(queue) > 0:
			candidate = queue[len(queue)-1]
		default:
			return result
		}

		blocker := blockers.resolve(candidate)
		result = append(result, blocker)
		for _, p := range parentsOf(blocker) {
			if !blockers.contains(p) {
				continue
			}
			if _, ok := pushedToPriorities[p]; ok {
				continue
			}
			pushedToPriorities[p] = struct{}{}
			priorities = append(priorities, p)
		}
		blockers.delete(blocker)
	}
}
