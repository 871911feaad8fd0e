package localba

import "github.com/parallax-data/bundle.scope/internal/sfm"

// unreachableDistance marks nodes with no path to any frontier view.
const unreachableDistance = -1

// distancesFrom runs a multi-source breadth-first search from the given
// frontier views and returns the hop distance per node slot. Frontier
// views start at distance zero; slots that are free or unreachable hold
// unreachableDistance. Frontier ids missing from the graph are skipped.
func (g *viewGraph) distancesFrom(frontier []sfm.ViewID) []int {
	dist := make([]int, len(g.nodes))
	for i := range dist {
		dist[i] = unreachableDistance
	}
	queue := make([]uint32, 0, len(frontier))
	for _, id := range frontier {
		idx, ok := g.nodeByID[id]
		if !ok || dist[idx] == 0 {
			continue
		}
		dist[idx] = 0
		queue = append(queue, idx)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d := dist[cur]
		for _, e := range g.nodes[cur].edges {
			next := g.otherEnd(e, cur)
			if dist[next] != unreachableDistance {
				continue
			}
			dist[next] = d + 1
			queue = append(queue, next)
		}
	}
	return dist
}
