package localba

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/parallax-data/bundle.scope/internal/sfm"
)

// FocalSample is one focal length estimate together with the number of
// poses that shared the intrinsic when the sample was taken.
type FocalSample struct {
	PoseCount int     `json:"pose_count"`
	Focal     float64 `json:"focal"`
}

// RecordSample appends one focal sample to an intrinsic's history. The
// history is append-only and never truncated.
func (m *Manager) RecordSample(id sfm.IntrinsicID, poseCount int, focal float64) {
	m.focalHistory[id] = append(m.focalHistory[id], FocalSample{
		PoseCount: poseCount,
		Focal:     focal,
	})
}

// RecordIntrinsics samples the current focal length of every intrinsic
// in the scene. Called once per round, after the solve has written the
// adjusted values back.
func (m *Manager) RecordIntrinsics(scene *sfm.Scene) {
	for id, in := range scene.Intrinsics {
		m.RecordSample(id, len(scene.PosesUsingIntrinsic(id)), in.FocalLength)
	}
}

// CheckFocalConvergence decides whether an intrinsic's focal length has
// stopped moving and freezes it when it has. The test looks at the last
// window samples: their population stdev, normalized by the focal range
// over the entire history, must fall below limit. Fewer samples than
// the window is inconclusive and reports not converged. A zero range
// over a full window means the focal never moved and counts as
// converged. Freezing is one-way; once frozen the check always reports
// true without recomputing.
func (m *Manager) CheckFocalConvergence(id sfm.IntrinsicID, window int, limit float64) bool {
	if m.frozen[id] {
		return true
	}
	hist := m.focalHistory[id]
	if len(hist) < window {
		return false
	}
	lo, hi := hist[0].Focal, hist[0].Focal
	for _, s := range hist[1:] {
		if s.Focal < lo {
			lo = s.Focal
		}
		if s.Focal > hi {
			hi = s.Focal
		}
	}
	if hi == lo {
		m.frozen[id] = true
		return true
	}
	vals := make([]float64, window)
	for i, s := range hist[len(hist)-window:] {
		vals[i] = s.Focal
	}
	if stat.PopStdDev(vals, nil)/(hi-lo) < limit {
		m.frozen[id] = true
		return true
	}
	return false
}

// CheckIntrinsicsConsistency runs the convergence test over every
// intrinsic with recorded history, using the configured window and
// stdev limit. Returns the ids frozen by this call.
func (m *Manager) CheckIntrinsicsConsistency() []sfm.IntrinsicID {
	var newlyFrozen []sfm.IntrinsicID
	for _, id := range m.recordedIntrinsics() {
		if m.frozen[id] {
			continue
		}
		if m.CheckFocalConvergence(id, m.params.FocalWindowSize, m.params.FocalStdevLimit) {
			newlyFrozen = append(newlyFrozen, id)
		}
	}
	return newlyFrozen
}

func (m *Manager) recordedIntrinsics() []sfm.IntrinsicID {
	out := make([]sfm.IntrinsicID, 0, len(m.focalHistory))
	for id := range m.focalHistory {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsIntrinsicFrozen reports whether the focal of an intrinsic has been
// declared converged.
func (m *Manager) IsIntrinsicFrozen(id sfm.IntrinsicID) bool {
	return m.frozen[id]
}

// FrozenIntrinsics returns the ids of all frozen intrinsics, sorted.
func (m *Manager) FrozenIntrinsics() []sfm.IntrinsicID {
	var out []sfm.IntrinsicID
	for id, f := range m.frozen {
		if f {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IntrinsicHistory returns a copy of the recorded focal history for an
// intrinsic. Unknown ids yield an empty history.
func (m *Manager) IntrinsicHistory(id sfm.IntrinsicID) []FocalSample {
	return append([]FocalSample(nil), m.focalHistory[id]...)
}

// IntrinsicHistories returns a copy of every recorded focal history.
func (m *Manager) IntrinsicHistories() map[sfm.IntrinsicID][]FocalSample {
	out := make(map[sfm.IntrinsicID][]FocalSample, len(m.focalHistory))
	for id, hist := range m.focalHistory {
		out[id] = append([]FocalSample(nil), hist...)
	}
	return out
}

// LastFocal returns the most recently recorded focal length for an
// intrinsic. It panics if nothing was ever recorded for the id.
func (m *Manager) LastFocal(id sfm.IntrinsicID) float64 {
	hist := m.focalHistory[id]
	if len(hist) == 0 {
		panic(fmt.Sprintf("localba: no focal history for intrinsic %d", id))
	}
	return hist[len(hist)-1].Focal
}
