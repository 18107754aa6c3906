package render

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
)

// RenderFrame renders a Frame as plain terminal text with no width
// constraint, for one-shot/non-tty output where there is no terminal size
// to truncate against. filterQuery, if non-empty, fuzzy-restricts the
// branches shown.
func RenderFrame(f Frame, filterQuery string) string {
	return RenderFrameWidth(f, filterQuery, 0)
}

// RenderFrameWidth is RenderFrame with an explicit terminal width. Lines
// that would overflow width go through a three-step shortening ladder:
// elide the CI badge's leading space, then drop the unmerged-count detail,
// then abbreviate the branch name.
// width <= 0 disables truncation entirely.
func RenderFrameWidth(f Frame, filterQuery string, width int) string {
	if f.Err != nil {
		return errorStyle.Render("branchgraph: " + f.Err.Error())
	}

	branches := f.Branches
	if filterQuery != "" {
		branches = filterBranches(branches, filterQuery)
	}

	var b strings.Builder
	for _, v := range branches {
		b.WriteString(renderLine(v, width))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var ansiEscape = regexp.MustCompile("\x1b\\[[^@-~]*[@-~]")

// displayLen is the Go analogue of the teacher lineage's displayLen: the
// width a rendered line actually occupies on screen, ignoring ANSI escape
// sequences. Go strings are already rune-indexed, so unlike the Python
// original there is no separate surrogate-pair accounting to do.
func displayLen(s string) int {
	return utf8.RuneCountInString(ansiEscape.ReplaceAllString(s, ""))
}

func renderLine(v BranchView, width int) string {
	graph := v.Row.Render() + "  "
	sync := syncBadge(v) + " "
	ci := ciBadge(v.CI) + " "
	name := branchLabel(v)

	line := graph + sync + ci + name
	if width <= 0 || displayLen(line) <= width {
		return line
	}

	// Drop the CI badge's leading space.
	ciTrimmed := strings.TrimPrefix(ci, " ")
	line = graph + sync + ciTrimmed + name
	if displayLen(line) <= width {
		return line
	}

	// Drop the unmerged-count detail entirely before touching the name.
	nameNoUnmerged := branchNameStyled(v)
	line = graph + sync + ciTrimmed + nameNoUnmerged
	if displayLen(line) <= width {
		return line
	}

	// Abbreviate the branch name per the original's rsplit('/',1) ladder:
	// keep the leaf, shrink the directory prefix to fit, and fall back to
	// a flat truncation once there's no room left for context.
	budget := width - displayLen(graph+sync+ciTrimmed)
	shortName := abbreviateName(v.Name, budget)
	if shortName != v.Name {
		return graph + sync + ciTrimmed + strings.Replace(nameNoUnmerged, v.Name, shortName, 1)
	}
	return line
}

func abbreviateName(name string, budget int) string {
	if budget < 1 || utf8.RuneCountInString(name) <= budget {
		return name
	}
	space := budget
	if space < 10 {
		space = 10
	}

	shortened := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		dir, leaf := name[:i], name[i+1:]
		dirBudget := space - 2 - utf8.RuneCountInString(leaf)
		if dirBudget < 0 {
			dirBudget = 0
		}
		shortened = truncateRunes(dir, dirBudget) + "…/" + leaf
	}
	if utf8.RuneCountInString(shortened) > space {
		shortened = truncateRunes(shortened, space)
	}
	return shortened
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

// filterBranches fuzzy-matches query against every branch name and keeps
// only the matches, in best-match order, so the overlay remains usable on
// a repository with hundreds of branches.
func filterBranches(branches []BranchView, query string) []BranchView {
	names := make([]string, len(branches))
	for i, v := range branches {
		names[i] = v.Name
	}
	matches := fuzzy.Find(query, names)

	out := make([]BranchView, 0, len(matches))
	for _, m := range matches {
		out = append(out, branches[m.Index])
	}
	return out
}
