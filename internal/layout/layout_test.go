package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// graph is a tiny adjacency-list fixture for exercising Layout without
// depending on internal/model.
type graph struct {
	parents  map[string][]string
	children map[string][]string
}

func newGraph() *graph {
	return &graph{parents: map[string][]string{}, children: map[string][]string{}}
}

func (g *graph) edge(parent, child string) {
	g.parents[child] = append(g.parents[child], parent)
	g.children[parent] = append(g.children[parent], child)
}

func (g *graph) parentsOf(b string) []string  { return g.parents[b] }
func (g *graph) childrenOf(b string) []string { return g.children[b] }

func TestLayoutLinearHistory(t *testing.T) {
	g := newGraph()
	g.edge("f2", "f1")
	g.edge("f3", "f2")
	g.edge("main", "f3")

	order := []string{"f1", "f2", "f3", "main"}
	rows := Layout(order, g.parentsOf, g.childrenOf)
	require.Len(t, rows, 4)

	require.Equal(t, Row{At: 0, Up: newIntSet(), Down: newIntSet(0), Through: newIntSet()}, rows[0])
	require.Equal(t, Row{At: 0, Up: newIntSet(0), Down: newIntSet(0), Through: newIntSet()}, rows[1])
	require.Equal(t, Row{At: 0, Up: newIntSet(0), Down: newIntSet(0), Through: newIntSet()}, rows[2])
	require.Equal(t, Row{At: 0, Up: newIntSet(0), Down: newIntSet(), Through: newIntSet()}, rows[3])
}

func TestLayoutSimpleMergeWithCrossOver(t *testing.T) {
	g := newGraph()
	g.edge("autovalue", "freebuilder")
	g.edge("autovalue", "workshop")
	g.edge("deadlock", "workshop")
	g.edge("develop", "deadlock")
	g.edge("develop", "autovalue")

	order := []string{"freebuilder", "workshop", "deadlock", "autovalue", "develop"}
	rows := Layout(order, g.parentsOf, g.childrenOf)
	require.Len(t, rows, 5)

	require.Equal(t, Row{At: 1, Up: newIntSet(), Down: newIntSet(1), Through: newIntSet()}, rows[0])
	require.Equal(t, Row{At: 0, Up: newIntSet(1), Down: newIntSet(0, 1), Through: newIntSet()}, rows[1])
	require.Equal(t, Row{At: 0, Up: newIntSet(0), Down: newIntSet(0), Through: newIntSet(1)}, rows[2])
	require.Equal(t, Row{At: 1, Up: newIntSet(0, 1), Down: newIntSet(0), Through: newIntSet()}, rows[3])
	require.Equal(t, Row{At: 0, Up: newIntSet(0), Down: newIntSet(), Through: newIntSet()}, rows[4])
}

func TestLayoutReverseRoundTripsToOneRowPerBranch(t *testing.T) {
	g := newGraph()
	g.edge("b", "a")
	g.edge("c", "b")

	order := []string{"a", "b", "c"}
	rows := Layout(order, g.parentsOf, g.childrenOf)
	require.Len(t, rows, len(order))
	for _, r := range rows {
		require.GreaterOrEqual(t, r.At, 0)
		for idx := range r.Through {
			require.False(t, r.Up.Has(idx) || r.Down.Has(idx))
		}
	}
}
