package localba

import (
	"fmt"
	"sort"

	"github.com/parallax-data/bundle.scope/internal/sfm"
)

// ParamState says how a parameter block participates in the next solve.
type ParamState string

const (
	StateRefined  ParamState = "refined"  // Free variable in the solve
	StateConstant ParamState = "constant" // Present but held fixed
	StateIgnored  ParamState = "ignored"  // Excluded from the solve
)

// StateCount tallies parameter blocks per participation state.
type StateCount struct {
	Refined  int `json:"refined"`
	Constant int `json:"constant"`
	Ignored  int `json:"ignored"`
}

func (c StateCount) total() int { return c.Refined + c.Constant + c.Ignored }

func (c *StateCount) add(s ParamState) {
	switch s {
	case StateRefined:
		c.Refined++
	case StateConstant:
		c.Constant++
	case StateIgnored:
		c.Ignored++
	}
}

// ConvertDistancesToStates derives the participation state of every
// pose, intrinsic and landmark from the last distance computation.
//
// Poses follow their distance directly: within the refine limit they
// are refined, within the constant limit constant, otherwise ignored
// (unreachable poses count as beyond every limit). An intrinsic is
// ignored when every pose using it is ignored or none uses it,
// constant when its focal history is frozen or every user is constant,
// and refined otherwise. A landmark needs all its observers refined or
// constant to enter the solve: refined if at least one observer is
// refined, constant if all are constant, ignored as soon as any
// observer is out of scope.
func (m *Manager) ConvertDistancesToStates(scene *sfm.Scene) {
	m.statePerPose = make(map[sfm.PoseID]ParamState, len(m.distPerPose))
	m.statePerIntrinsic = make(map[sfm.IntrinsicID]ParamState, len(scene.Intrinsics))
	m.statePerLandmark = make(map[sfm.LandmarkID]ParamState, len(scene.Landmarks))

	// Every pose in the scene gets a state; poses the last distance
	// pass never reached are treated as unreachable.
	for _, v := range scene.Views {
		if !v.HasPose() {
			continue
		}
		if _, done := m.statePerPose[v.Pose]; done {
			continue
		}
		d, ok := m.distPerPose[v.Pose]
		if !ok {
			d = unreachableDistance
		}
		m.statePerPose[v.Pose] = m.poseStateForDistance(d)
	}

	for id := range scene.Intrinsics {
		m.statePerIntrinsic[id] = m.intrinsicStateFor(scene, id)
	}

	for id, lm := range scene.Landmarks {
		m.statePerLandmark[id] = m.landmarkStateFor(lm)
	}
}

func (m *Manager) poseStateForDistance(d int) ParamState {
	switch {
	case d >= 0 && d <= m.params.DistanceLimitRefine:
		return StateRefined
	case d >= 0 && d <= m.params.DistanceLimitConstant:
		return StateConstant
	default:
		return StateIgnored
	}
}

func (m *Manager) intrinsicStateFor(scene *sfm.Scene, id sfm.IntrinsicID) ParamState {
	users := scene.PosesUsingIntrinsic(id)
	allIgnored := true
	allConstant := len(users) > 0
	for _, pose := range users {
		s := m.statePerPose[pose]
		if s != StateIgnored {
			allIgnored = false
		}
		if s != StateConstant {
			allConstant = false
		}
	}
	switch {
	case len(users) == 0 || allIgnored:
		return StateIgnored
	case m.frozen[id] || allConstant:
		return StateConstant
	default:
		return StateRefined
	}
}

func (m *Manager) landmarkStateFor(lm sfm.Landmark) ParamState {
	anyRefined := false
	allRefinedOrConstant := len(lm.Observers) > 0
	for _, pose := range lm.Observers {
		switch m.statePerPose[pose] {
		case StateRefined:
			anyRefined = true
		case StateConstant:
		default:
			allRefinedOrConstant = false
		}
	}
	switch {
	case allRefinedOrConstant && anyRefined:
		return StateRefined
	case allRefinedOrConstant:
		return StateConstant
	default:
		return StateIgnored
	}
}

// PoseState returns the participation state decided for a pose in the
// last classification. It panics if the pose was never classified.
func (m *Manager) PoseState(id sfm.PoseID) ParamState {
	s, ok := m.statePerPose[id]
	if !ok {
		panic(fmt.Sprintf("localba: no state for pose %d", id))
	}
	return s
}

// IntrinsicState returns the participation state decided for an
// intrinsic in the last classification. It panics on unknown ids.
func (m *Manager) IntrinsicState(id sfm.IntrinsicID) ParamState {
	s, ok := m.statePerIntrinsic[id]
	if !ok {
		panic(fmt.Sprintf("localba: no state for intrinsic %d", id))
	}
	return s
}

// LandmarkState returns the participation state decided for a landmark
// in the last classification. It panics on unknown ids.
func (m *Manager) LandmarkState(id sfm.LandmarkID) ParamState {
	s, ok := m.statePerLandmark[id]
	if !ok {
		panic(fmt.Sprintf("localba: no state for landmark %d", id))
	}
	return s
}

// StateCounts tallies the last classification per parameter family.
func (m *Manager) StateCounts() (poses, intrinsics, landmarks StateCount) {
	for _, s := range m.statePerPose {
		poses.add(s)
	}
	for _, s := range m.statePerIntrinsic {
		intrinsics.add(s)
	}
	for _, s := range m.statePerLandmark {
		landmarks.add(s)
	}
	return poses, intrinsics, landmarks
}

// NumConstantAndRefinedPoses counts the poses the next solve will see,
// whether free or fixed.
func (m *Manager) NumConstantAndRefinedPoses() int {
	n := 0
	for _, s := range m.statePerPose {
		if s == StateRefined || s == StateConstant {
			n++
		}
	}
	return n
}

// RefinedLandmarks returns the ids of landmarks classified refined,
// sorted ascending.
func (m *Manager) RefinedLandmarks() []sfm.LandmarkID {
	var out []sfm.LandmarkID
	for id, s := range m.statePerLandmark {
		if s == StateRefined {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
