package render

import (
	"testing"

	"github.com/stretchr/testify/require"

	"branchgraph.dev/branchgraph/internal/layout"
)

func TestRenderFrameWidthNoTruncationWhenUnconstrained(t *testing.T) {
	frame := Frame{Branches: []BranchView{
		{Name: "a-very-long-feature-branch-name-indeed", Row: layout.Row{At: 0}},
	}}
	out := RenderFrameWidth(frame, "", 0)
	require.Contains(t, out, "a-very-long-feature-branch-name-indeed")
}

func TestRenderFrameWidthAbbreviatesOverlongNames(t *testing.T) {
	frame := Frame{Branches: []BranchView{
		{Name: "team/a-very-long-feature-branch-name-indeed", Row: layout.Row{At: 0}},
	}}
	full := RenderFrameWidth(frame, "", 0)
	truncated := RenderFrameWidth(frame, "", 20)

	require.Less(t, displayLen(truncated), displayLen(full))
	require.Contains(t, truncated, "…")
}

func TestDisplayLenIgnoresANSIEscapes(t *testing.T) {
	require.Equal(t, 5, displayLen("\x1b[1;31mhello\x1b[0m"))
}

func TestRenderFrameWidthDropsUnmergedBadgeBeforeAbbreviatingName(t *testing.T) {
	frame := Frame{Branches: []BranchView{
		{Name: "feature-x", Row: layout.Row{At: 0}, Unmerged: 42},
	}}
	full := RenderFrameWidth(frame, "", 0)
	require.Contains(t, full, "+42")

	// Just narrow enough that eliding the CI badge's leading space alone
	// isn't sufficient but the full branch name still fits once the
	// unmerged badge is gone: the name must survive intact and only the
	// badge should be dropped.
	narrowed := RenderFrameWidth(frame, "", displayLen(full)-2)
	require.NotContains(t, narrowed, "+42")
	require.Contains(t, narrowed, "feature-x")
}

func TestAbbreviateNameKeepsLeafWhenBudgetAllows(t *testing.T) {
	got := abbreviateName("very-long-team-name/x", 10)
	require.Contains(t, got, "/x")
	require.LessOrEqual(t, len([]rune(got)), 10)
}

func TestAbbreviateNameNoopWithinBudget(t *testing.T) {
	got := abbreviateName("short", 10)
	require.Equal(t, "short", got)
}
