package render

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"branchgraph.dev/branchgraph/internal/ci"
)

// palette is the branch-color rotation, ported from the tree renderer's
// color table so adjacent lanes in the DAG stay visually distinguishable.
var palette = [][3]int{
	{76, 203, 241},
	{77, 202, 125},
	{110, 173, 38},
	{245, 200, 0},
	{248, 144, 72},
	{244, 98, 81},
	{235, 130, 188},
	{159, 131, 228},
	{80, 132, 243},
}

func laneColor(column int) lipgloss.Color {
	c := palette[column%len(palette)]
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}

var (
	headStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	trunkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	needsSyncStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	filterBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	ciBadgeStyles  = map[ci.Status]lipgloss.Style{
		ci.Green:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		ci.Yellow: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		ci.Red:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

func ciBadge(status *ci.Status) string {
	if status == nil {
		return " "
	}
	style, ok := ciBadgeStyles[*status]
	if !ok {
		return " "
	}
	return style.Render("●")
}

func syncBadge(v BranchView) string {
	if !v.HasRemote {
		return dimStyle.Render("-")
	}
	if v.InSync {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("✓")
	}
	return needsSyncStyle.Render("↑")
}

func branchLabel(v BranchView) string {
	return branchNameStyled(v) + unmergedBadge(v)
}

// branchNameStyled is the branch name alone, colored per its role, with no
// unmerged-count suffix — the form the shortening ladder falls back to once
// it has dropped that detail.
func branchNameStyled(v BranchView) string {
	switch {
	case v.IsHead:
		return headStyle.Render(v.Name + " (HEAD)")
	case v.IsTrunk:
		return trunkStyle.Render(v.Name)
	default:
		return lipgloss.NewStyle().Foreground(laneColor(v.Row.At)).Render(v.Name)
	}
}

func unmergedBadge(v BranchView) string {
	if v.Unmerged <= 0 {
		return ""
	}
	return dimStyle.Render(fmt.Sprintf(" +%d", v.Unmerged))
}
