// Package localba maintains the local bundle adjustment scope of an
// incremental structure-from-motion reconstruction. It keeps a
// proximity graph over posed views, measures each view's graph
// distance to the newly resected frontier, and classifies every pose,
// intrinsic and landmark as refined, constant or ignored for the next
// solve. Focal lengths are tracked across rounds and frozen once their
// variation stabilizes.
package localba

import (
	"fmt"
	"sort"

	"github.com/parallax-data/bundle.scope/internal/monitoring"
	"github.com/parallax-data/bundle.scope/internal/sfm"
	"github.com/parallax-data/bundle.scope/internal/timeutil"
)

// Manager owns the proximity graph, the distance and state maps and
// the per-intrinsic focal histories. It is not safe for concurrent
// use: rounds mutate shared state and the caller must serialize them.
type Manager struct {
	params Params
	clock  timeutil.Clock
	timer  *stepTimer

	graph          *viewGraph
	intrinsicEdges map[uint32]struct{}

	newViews map[sfm.ViewID]struct{}

	distPerView map[sfm.ViewID]int
	distPerPose map[sfm.PoseID]int

	statePerPose      map[sfm.PoseID]ParamState
	statePerIntrinsic map[sfm.IntrinsicID]ParamState
	statePerLandmark  map[sfm.LandmarkID]ParamState

	focalHistory map[sfm.IntrinsicID][]FocalSample
	frozen       map[sfm.IntrinsicID]bool

	rounds          int64
	pendingNewViews []sfm.ViewID
	pendingTimings  RoundTimings
}

// NewManager returns a manager with validated parameters.
func NewManager(params Params) (*Manager, error) {
	return newManager(params, timeutil.RealClock{})
}

func newManager(params Params, clock timeutil.Clock) (*Manager, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scope params: %w", err)
	}
	return &Manager{
		params:            params,
		clock:             clock,
		timer:             newStepTimer(clock),
		graph:             newViewGraph(),
		intrinsicEdges:    make(map[uint32]struct{}),
		newViews:          make(map[sfm.ViewID]struct{}),
		distPerView:       make(map[sfm.ViewID]int),
		distPerPose:       make(map[sfm.PoseID]int),
		statePerPose:      make(map[sfm.PoseID]ParamState),
		statePerIntrinsic: make(map[sfm.IntrinsicID]ParamState),
		statePerLandmark:  make(map[sfm.LandmarkID]ParamState),
		focalHistory:      make(map[sfm.IntrinsicID][]FocalSample),
		frozen:            make(map[sfm.IntrinsicID]bool),
	}, nil
}

// Params returns the manager's configuration.
func (m *Manager) Params() Params { return m.params }

// Rounds returns how many rounds have finished.
func (m *Manager) Rounds() int64 { return m.rounds }

// SetNewViews replaces the new-view frontier for the next distance
// sweep. The previous frontier is discarded, never merged.
func (m *Manager) SetNewViews(ids []sfm.ViewID) {
	m.newViews = make(map[sfm.ViewID]struct{}, len(ids))
	for _, id := range ids {
		m.newViews[id] = struct{}{}
	}
}

// NewViews returns the current frontier, sorted ascending.
func (m *Manager) NewViews() []sfm.ViewID {
	out := make([]sfm.ViewID, 0, len(m.newViews))
	for id := range m.newViews {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SelectViewsToAdd returns every posed view without a graph node,
// sorted by id. On an empty graph that is every posed view.
func (m *Manager) SelectViewsToAdd(scene *sfm.Scene) []sfm.ViewID {
	var out []sfm.ViewID
	for _, v := range scene.PosedViews() {
		if !m.graph.hasView(v.ID) {
			out = append(out, v.ID)
		}
	}
	return out
}

// UpdateGraphWithNewViews creates nodes for all posed views missing
// from the graph, then connects each of them to every other graphed
// view it shares at least MinSharedLandmarks tracks with. Existing
// edges are never duplicated. Returns the ids of the added views.
func (m *Manager) UpdateGraphWithNewViews(scene *sfm.Scene, tracks sfm.TrackIndex) []sfm.ViewID {
	added := m.SelectViewsToAdd(scene)
	for _, id := range added {
		m.graph.addView(id)
	}
	all := m.graph.views()
	for _, a := range added {
		for _, b := range all {
			if a == b || m.graph.connected(a, b) {
				continue
			}
			if tracks.CommonTrackCount(a, b) >= m.params.MinSharedLandmarks {
				m.graph.connect(a, b)
			}
		}
	}
	return added
}

// AddIntrinsicEdges joins every pair of graphed views that share an
// intrinsic, so a common calibration propagates proximity even without
// shared tracks. Edges added by a previous call are purged first,
// which makes the rebuild idempotent. A pair already joined by a match
// edge is left as is and not recorded, keeping the next purge away
// from match edges. Returns the number of intrinsic edges added.
func (m *Manager) AddIntrinsicEdges(scene *sfm.Scene) int {
	m.PurgeIntrinsicEdges()
	ids := make([]sfm.IntrinsicID, 0, len(scene.Intrinsics))
	for id := range scene.Intrinsics {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	added := 0
	for _, id := range ids {
		var graphed []sfm.ViewID
		for _, v := range scene.ViewsUsingIntrinsic(id) {
			if m.graph.hasView(v) {
				graphed = append(graphed, v)
			}
		}
		for i := 0; i < len(graphed); i++ {
			for j := i + 1; j < len(graphed); j++ {
				if e, isNew := m.graph.connect(graphed[i], graphed[j]); isNew {
					m.intrinsicEdges[e] = struct{}{}
					added++
				}
			}
		}
	}
	return added
}

// PurgeIntrinsicEdges removes every edge recorded by AddIntrinsicEdges
// and returns how many were removed. Match edges are never touched.
func (m *Manager) PurgeIntrinsicEdges() int {
	n := len(m.intrinsicEdges)
	for e := range m.intrinsicEdges {
		m.graph.removeEdge(e)
	}
	m.intrinsicEdges = make(map[uint32]struct{})
	return n
}

// IntrinsicEdgeCount returns how many intrinsic edges are in place.
func (m *Manager) IntrinsicEdgeCount() int { return len(m.intrinsicEdges) }

// RemoveViews deletes the given views and their incident edges from
// the graph. Views that were never added are skipped. Returns true
// only if every requested view was present.
func (m *Manager) RemoveViews(ids []sfm.ViewID) bool {
	removed := 0
	for _, id := range ids {
		freed, ok := m.graph.removeView(id)
		if !ok {
			monitoring.Logf("localba: view %d not in graph, remove skipped", id)
			continue
		}
		for _, e := range freed {
			delete(m.intrinsicEdges, e)
		}
		removed++
	}
	return removed == len(ids)
}

// GraphViewCount returns the number of live graph nodes.
func (m *Manager) GraphViewCount() int { return m.graph.viewCount() }

// GraphEdgeCount returns the number of live edges, intrinsic included.
func (m *Manager) GraphEdgeCount() int { return m.graph.edgeCount() }

// GraphHasView reports whether a view currently has a graph node.
func (m *Manager) GraphHasView(id sfm.ViewID) bool { return m.graph.hasView(id) }

// GraphNeighbors returns the views adjacent to a view, sorted.
func (m *Manager) GraphNeighbors(id sfm.ViewID) []sfm.ViewID {
	return m.graph.neighborViews(id)
}

// ComputeDistances rebuilds both distance maps with one multi-source
// breadth-first sweep seeded at the current frontier. Intrinsic edges
// traverse exactly like match edges. Unreachable views get distance
// -1. A pose shared by several views takes the smallest view distance,
// counting -1 as farther than any hop count. Both maps are rebuilt
// from scratch on every call.
func (m *Manager) ComputeDistances(scene *sfm.Scene) {
	m.distPerView = make(map[sfm.ViewID]int, m.graph.viewCount())
	m.distPerPose = make(map[sfm.PoseID]int, m.graph.viewCount())

	dist := m.graph.distancesFrom(m.NewViews())
	for idx, d := range dist {
		if !m.graph.nodes[idx].used {
			continue
		}
		view := m.graph.nodes[idx].view
		m.distPerView[view] = d
		pose, ok := scene.PoseOfView(view)
		if !ok {
			continue
		}
		cur, seen := m.distPerPose[pose]
		if !seen || (d >= 0 && (cur < 0 || d < cur)) {
			m.distPerPose[pose] = d
		}
	}
}

// ViewDistance returns the distance computed for a view in the last
// sweep. It panics if the view has no distance entry.
func (m *Manager) ViewDistance(id sfm.ViewID) int {
	d, ok := m.distPerView[id]
	if !ok {
		panic(fmt.Sprintf("localba: no distance for view %d", id))
	}
	return d
}

// PoseDistance returns the distance computed for a pose in the last
// sweep. It panics if the pose has no distance entry.
func (m *Manager) PoseDistance(id sfm.PoseID) int {
	d, ok := m.distPerPose[id]
	if !ok {
		panic(fmt.Sprintf("localba: no distance for pose %d", id))
	}
	return d
}

// DistancesHistogram counts poses per distance value from the last
// sweep. Unreachable poses land in the -1 bucket.
func (m *Manager) DistancesHistogram() map[int]int {
	hist := make(map[int]int)
	for _, d := range m.distPerPose {
		hist[d]++
	}
	return hist
}

// Scope snapshots the current states and distances for the optimizer.
func (m *Manager) Scope() *RoundScope {
	s := &RoundScope{
		PoseStates:      make(map[sfm.PoseID]ParamState, len(m.statePerPose)),
		IntrinsicStates: make(map[sfm.IntrinsicID]ParamState, len(m.statePerIntrinsic)),
		LandmarkStates:  make(map[sfm.LandmarkID]ParamState, len(m.statePerLandmark)),
		ViewDistances:   make(map[sfm.ViewID]int, len(m.distPerView)),
		PoseDistances:   make(map[sfm.PoseID]int, len(m.distPerPose)),
	}
	for id, st := range m.statePerPose {
		s.PoseStates[id] = st
	}
	for id, st := range m.statePerIntrinsic {
		s.IntrinsicStates[id] = st
	}
	for id, st := range m.statePerLandmark {
		s.LandmarkStates[id] = st
	}
	for id, d := range m.distPerView {
		s.ViewDistances[id] = d
	}
	for id, d := range m.distPerPose {
		s.PoseDistances[id] = d
	}
	return s
}

// PrepareRound runs the pre-solve half of a round: replace the
// frontier, update graph nodes and match edges, rebuild intrinsic
// edges, recompute distances and classify all parameter blocks. The
// returned scope is what the optimizer should solve against.
func (m *Manager) PrepareRound(scene *sfm.Scene, tracks sfm.TrackIndex, newViews []sfm.ViewID) *RoundScope {
	m.pendingTimings = RoundTimings{}
	m.pendingNewViews = append([]sfm.ViewID(nil), newViews...)
	sort.Slice(m.pendingNewViews, func(i, j int) bool {
		return m.pendingNewViews[i] < m.pendingNewViews[j]
	})
	m.SetNewViews(newViews)

	m.timer.start()
	added := m.UpdateGraphWithNewViews(scene, tracks)
	intrinsicEdges := m.AddIntrinsicEdges(scene)
	m.pendingTimings.GraphUpdate = m.timer.lap()

	m.ComputeDistances(scene)
	m.pendingTimings.Distances = m.timer.lap()

	m.ConvertDistancesToStates(scene)
	m.pendingTimings.Classification = m.timer.lap()

	monitoring.Logf("localba: round %d prepared: frontier=%d added=%d intrinsic_edges=%d graph=%dv/%de",
		m.rounds+1, len(newViews), len(added), intrinsicEdges,
		m.graph.viewCount(), m.graph.edgeCount())
	return m.Scope()
}

// FinishRound completes a round after the solve: record the adjusted
// focal lengths, re-evaluate convergence freezing and assemble the
// round summary.
func (m *Manager) FinishRound(scene *sfm.Scene, solve SolveReport) RoundStats {
	m.pendingTimings.Solve = solve.Duration

	m.timer.start()
	m.RecordIntrinsics(scene)
	newlyFrozen := m.CheckIntrinsicsConsistency()
	m.pendingTimings.Save = m.timer.lap()

	if len(newlyFrozen) > 0 {
		monitoring.Logf("localba: froze %d intrinsics: %v", len(newlyFrozen), newlyFrozen)
	}

	m.rounds++
	poses, intrinsics, landmarks := m.StateCounts()
	return RoundStats{
		Round:             m.rounds,
		NewViews:          m.pendingNewViews,
		GraphViews:        m.graph.viewCount(),
		GraphEdges:        m.graph.edgeCount(),
		Poses:             poses,
		Intrinsics:        intrinsics,
		Landmarks:         landmarks,
		DistanceHistogram: m.DistancesHistogram(),
		FrozenIntrinsics:  m.FrozenIntrinsics(),
		Solve:             solve,
		Timings:           m.pendingTimings,
	}
}

// RunRound drives one full round: prepare, call the solver with the
// scope, then finish with whatever the solver reports. If the solver
// omits its duration the wall time of the call is used.
func (m *Manager) RunRound(scene *sfm.Scene, tracks sfm.TrackIndex, newViews []sfm.ViewID,
	solve func(*RoundScope) (SolveReport, error)) (RoundStats, error) {

	scope := m.PrepareRound(scene, tracks, newViews)
	start := m.clock.Now()
	report, err := solve(scope)
	if err != nil {
		return RoundStats{}, fmt.Errorf("solve failed: %w", err)
	}
	if report.Duration == 0 {
		report.Duration = m.clock.Since(start)
	}
	return m.FinishRound(scene, report), nil
}
