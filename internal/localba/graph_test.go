package localba

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallax-data/bundle.scope/internal/sfm"
)

func TestViewGraphAddAndRemove(t *testing.T) {
	g := newViewGraph()

	g.addView(1)
	g.addView(2)
	g.addView(3)
	assert.Equal(t, 3, g.viewCount())
	assert.Equal(t, []sfm.ViewID{1, 2, 3}, g.views())

	// Adding an existing view is a no-op.
	g.addView(2)
	assert.Equal(t, 3, g.viewCount())

	_, ok := g.removeView(2)
	require.True(t, ok)
	assert.Equal(t, 2, g.viewCount())
	assert.False(t, g.hasView(2))
	assert.Equal(t, []sfm.ViewID{1, 3}, g.views())

	_, ok = g.removeView(2)
	assert.False(t, ok, "second removal of the same view must fail")
}

func TestViewGraphSlotReuse(t *testing.T) {
	g := newViewGraph()
	g.addView(10)
	g.addView(20)
	require.Len(t, g.nodes, 2)

	_, ok := g.removeView(10)
	require.True(t, ok)

	// The freed slot is reused instead of growing the arena.
	g.addView(30)
	assert.Len(t, g.nodes, 2)
	assert.Equal(t, []sfm.ViewID{20, 30}, g.views())
}

func TestViewGraphConnect(t *testing.T) {
	g := newViewGraph()
	g.addView(1)
	g.addView(2)
	g.addView(3)

	_, isNew := g.connect(1, 2)
	assert.True(t, isNew)
	assert.Equal(t, 1, g.edgeCount())
	assert.True(t, g.connected(1, 2))
	assert.True(t, g.connected(2, 1), "edges are undirected")

	// Connecting an already-connected pair reuses the edge.
	_, isNew = g.connect(2, 1)
	assert.False(t, isNew)
	assert.Equal(t, 1, g.edgeCount())

	// Self loops and unknown endpoints are rejected.
	_, isNew = g.connect(1, 1)
	assert.False(t, isNew)
	_, isNew = g.connect(1, 99)
	assert.False(t, isNew)
	assert.Equal(t, 1, g.edgeCount())

	g.connect(1, 3)
	assert.Equal(t, []sfm.ViewID{2, 3}, g.neighborViews(1))
}

func TestViewGraphRemoveEdge(t *testing.T) {
	g := newViewGraph()
	g.addView(1)
	g.addView(2)
	g.addView(3)
	e12, _ := g.connect(1, 2)
	g.connect(2, 3)
	require.Equal(t, 2, g.edgeCount())
	require.Len(t, g.edges, 2)

	g.removeEdge(e12)
	assert.Equal(t, 1, g.edgeCount())
	assert.False(t, g.connected(1, 2))
	assert.True(t, g.connected(2, 3))

	// Removing it again is harmless.
	g.removeEdge(e12)
	assert.Equal(t, 1, g.edgeCount())

	// The freed edge slot is reused.
	g.connect(1, 3)
	assert.Len(t, g.edges, 2)
	assert.Equal(t, 2, g.edgeCount())
}

func TestViewGraphRemoveViewDropsIncidentEdges(t *testing.T) {
	g := newViewGraph()
	for id := sfm.ViewID(1); id <= 4; id++ {
		g.addView(id)
	}
	g.connect(1, 2)
	g.connect(2, 3)
	g.connect(3, 4)
	require.Equal(t, 3, g.edgeCount())

	freed, ok := g.removeView(2)
	require.True(t, ok)
	assert.Len(t, freed, 2, "both incident edges reported")
	assert.Equal(t, 1, g.edgeCount())
	assert.False(t, g.connected(1, 2))
	assert.False(t, g.connected(2, 3))
	assert.True(t, g.connected(3, 4))
	assert.Empty(t, g.neighborViews(1))
}

// The node set must always equal the set of added, never-removed views.
func TestViewGraphBijectionInvariant(t *testing.T) {
	g := newViewGraph()
	expected := make(map[sfm.ViewID]bool)

	add := func(id sfm.ViewID) {
		g.addView(id)
		expected[id] = true
	}
	remove := func(id sfm.ViewID) {
		_, ok := g.removeView(id)
		assert.Equal(t, expected[id], ok)
		delete(expected, id)
	}

	add(5)
	add(9)
	add(1)
	remove(9)
	add(12)
	add(9)
	remove(5)
	remove(5) // already gone
	add(7)

	want := make([]sfm.ViewID, 0, len(expected))
	for id := range expected {
		want = append(want, id)
	}
	assert.ElementsMatch(t, want, g.views())
	assert.Equal(t, len(expected), g.viewCount())
}
