package localba

import (
	"sort"

	"github.com/parallax-data/bundle.scope/internal/sfm"
)

// viewGraph is an undirected graph over view ids backed by slot arenas.
// Nodes and edges live in flat slices addressed by uint32 indices;
// removed slots go on free lists and are reused by later inserts, so
// the arenas never shrink and indices stay dense. Adjacency is stored
// as edge-index lists per node.
type viewGraph struct {
	nodes     []nodeSlot
	edges     []edgeSlot
	freeNodes []uint32
	freeEdges []uint32
	nodeByID  map[sfm.ViewID]uint32
	edgeByKey map[edgeKey]uint32
	liveNodes int
	liveEdges int
}

type nodeSlot struct {
	view  sfm.ViewID
	edges []uint32 // indices into viewGraph.edges
	used  bool
}

type edgeSlot struct {
	a, b uint32 // node indices, a < b
	used bool
}

// edgeKey orders the two node indices so each undirected pair has one key.
type edgeKey struct {
	lo, hi uint32
}

func makeEdgeKey(a, b uint32) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{lo: a, hi: b}
}

func newViewGraph() *viewGraph {
	return &viewGraph{
		nodeByID:  make(map[sfm.ViewID]uint32),
		edgeByKey: make(map[edgeKey]uint32),
	}
}

func (g *viewGraph) hasView(id sfm.ViewID) bool {
	_, ok := g.nodeByID[id]
	return ok
}

func (g *viewGraph) viewCount() int { return g.liveNodes }
func (g *viewGraph) edgeCount() int { return g.liveEdges }

// addView inserts a node for the view, reusing a free slot when one is
// available. Adding a view twice is a no-op.
func (g *viewGraph) addView(id sfm.ViewID) uint32 {
	if idx, ok := g.nodeByID[id]; ok {
		return idx
	}
	var idx uint32
	if n := len(g.freeNodes); n > 0 {
		idx = g.freeNodes[n-1]
		g.freeNodes = g.freeNodes[:n-1]
		g.nodes[idx] = nodeSlot{view: id, edges: g.nodes[idx].edges[:0], used: true}
	} else {
		idx = uint32(len(g.nodes))
		g.nodes = append(g.nodes, nodeSlot{view: id, used: true})
	}
	g.nodeByID[id] = idx
	g.liveNodes++
	return idx
}

// connect adds an undirected edge between two views already in the
// graph. It returns the edge index and whether a new edge was created;
// an existing edge is returned as-is. Self loops are rejected.
func (g *viewGraph) connect(a, b sfm.ViewID) (uint32, bool) {
	ia, ok := g.nodeByID[a]
	if !ok {
		return 0, false
	}
	ib, ok := g.nodeByID[b]
	if !ok || ia == ib {
		return 0, false
	}
	key := makeEdgeKey(ia, ib)
	if e, ok := g.edgeByKey[key]; ok {
		return e, false
	}
	var e uint32
	if n := len(g.freeEdges); n > 0 {
		e = g.freeEdges[n-1]
		g.freeEdges = g.freeEdges[:n-1]
		g.edges[e] = edgeSlot{a: key.lo, b: key.hi, used: true}
	} else {
		e = uint32(len(g.edges))
		g.edges = append(g.edges, edgeSlot{a: key.lo, b: key.hi, used: true})
	}
	g.edgeByKey[key] = e
	g.nodes[key.lo].edges = append(g.nodes[key.lo].edges, e)
	g.nodes[key.hi].edges = append(g.nodes[key.hi].edges, e)
	g.liveEdges++
	return e, true
}

func (g *viewGraph) connected(a, b sfm.ViewID) bool {
	ia, ok := g.nodeByID[a]
	if !ok {
		return false
	}
	ib, ok := g.nodeByID[b]
	if !ok {
		return false
	}
	_, ok = g.edgeByKey[makeEdgeKey(ia, ib)]
	return ok
}

// removeEdge frees an edge slot and unlinks it from both endpoints.
// Unknown or already-freed indices are ignored.
func (g *viewGraph) removeEdge(e uint32) {
	if int(e) >= len(g.edges) || !g.edges[e].used {
		return
	}
	es := g.edges[e]
	delete(g.edgeByKey, edgeKey{lo: es.a, hi: es.b})
	g.nodes[es.a].edges = dropEdgeRef(g.nodes[es.a].edges, e)
	g.nodes[es.b].edges = dropEdgeRef(g.nodes[es.b].edges, e)
	g.edges[e].used = false
	g.freeEdges = append(g.freeEdges, e)
	g.liveEdges--
}

func dropEdgeRef(refs []uint32, e uint32) []uint32 {
	for i, r := range refs {
		if r == e {
			refs[i] = refs[len(refs)-1]
			return refs[:len(refs)-1]
		}
	}
	return refs
}

// removeView frees the node slot for a view along with every incident
// edge. It reports whether the view was present and returns the freed
// edge indices so callers can drop bookkeeping tied to them.
func (g *viewGraph) removeView(id sfm.ViewID) ([]uint32, bool) {
	idx, ok := g.nodeByID[id]
	if !ok {
		return nil, false
	}
	incident := append([]uint32(nil), g.nodes[idx].edges...)
	for _, e := range incident {
		g.removeEdge(e)
	}
	delete(g.nodeByID, id)
	g.nodes[idx] = nodeSlot{edges: g.nodes[idx].edges[:0]}
	g.freeNodes = append(g.freeNodes, idx)
	g.liveNodes--
	return incident, true
}

// otherEnd returns the node index across edge e from node idx.
func (g *viewGraph) otherEnd(e, idx uint32) uint32 {
	if g.edges[e].a == idx {
		return g.edges[e].b
	}
	return g.edges[e].a
}

// views returns the ids of all live nodes, sorted ascending.
func (g *viewGraph) views() []sfm.ViewID {
	out := make([]sfm.ViewID, 0, g.liveNodes)
	for id := range g.nodeByID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// neighborViews returns the ids adjacent to a view, sorted ascending.
// Mostly a test and debugging hook; traversals use node indices.
func (g *viewGraph) neighborViews(id sfm.ViewID) []sfm.ViewID {
	idx, ok := g.nodeByID[id]
	if !ok {
		return nil
	}
	out := make([]sfm.ViewID, 0, len(g.nodes[idx].edges))
	for _, e := range g.nodes[idx].edges {
		out = append(out, g.nodes[g.otherEnd(e, idx)].view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
