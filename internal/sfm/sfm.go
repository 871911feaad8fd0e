// Package sfm holds the minimal structure-from-motion scene model the
// bundle scope manager operates on: views, shared intrinsics, landmarks
// and the track index used to measure co-visibility between views.
package sfm

import (
	"math"
	"sort"
)

// ViewID identifies a captured image (a view) in the scene.
type ViewID uint32

// PoseID identifies a camera pose. Several views may share one pose
// (e.g. multi-camera rigs), and a view may not have a pose yet.
type PoseID uint32

// IntrinsicID identifies a shared calibration (focal length etc).
type IntrinsicID uint32

// LandmarkID identifies a reconstructed 3D point.
type LandmarkID uint32

// UndefinedPose marks a view that has not been resected yet.
const UndefinedPose = PoseID(math.MaxUint32)

// View is a single image with its (possibly undefined) pose and the
// intrinsic group it was captured with.
type View struct {
	ID        ViewID
	Pose      PoseID
	Intrinsic IntrinsicID
}

// HasPose reports whether the view has been resected.
func (v View) HasPose() bool {
	return v.Pose != UndefinedPose
}

// Intrinsic is a shared camera calibration. Only the focal length is
// tracked here; it is the parameter whose convergence decides when the
// whole intrinsic group can be frozen.
type Intrinsic struct {
	ID          IntrinsicID
	FocalLength float64
}

// Landmark is a reconstructed 3D point together with the poses of the
// cameras that observe it.
type Landmark struct {
	ID        LandmarkID
	Observers []PoseID
}

// Scene is the reconstruction state shared with the scope manager. The
// manager only ever reads it; ownership stays with the caller.
type Scene struct {
	Views      map[ViewID]View
	Intrinsics map[IntrinsicID]Intrinsic
	Landmarks  map[LandmarkID]Landmark
}

// NewScene returns an empty scene with all maps allocated.
func NewScene() *Scene {
	return &Scene{
		Views:      make(map[ViewID]View),
		Intrinsics: make(map[IntrinsicID]Intrinsic),
		Landmarks:  make(map[LandmarkID]Landmark),
	}
}

// AddView inserts or replaces a view.
func (s *Scene) AddView(v View) {
	s.Views[v.ID] = v
}

// AddIntrinsic inserts or replaces an intrinsic group.
func (s *Scene) AddIntrinsic(in Intrinsic) {
	s.Intrinsics[in.ID] = in
}

// SetFocalLength updates the focal length of an existing intrinsic.
func (s *Scene) SetFocalLength(id IntrinsicID, focal float64) {
	in := s.Intrinsics[id]
	in.ID = id
	in.FocalLength = focal
	s.Intrinsics[id] = in
}

// ObserveLandmark records that pose observes landmark, creating the
// landmark on first sight. Duplicate observations are ignored.
func (s *Scene) ObserveLandmark(id LandmarkID, pose PoseID) {
	lm, ok := s.Landmarks[id]
	if !ok {
		lm = Landmark{ID: id}
	}
	for _, p := range lm.Observers {
		if p == pose {
			s.Landmarks[id] = lm
			return
		}
	}
	lm.Observers = append(lm.Observers, pose)
	s.Landmarks[id] = lm
}

// RemoveView deletes a view; landmarks and intrinsics are left alone.
func (s *Scene) RemoveView(id ViewID) {
	delete(s.Views, id)
}

// PosedViews returns every view with a defined pose, sorted by view id.
func (s *Scene) PosedViews() []View {
	out := make([]View, 0, len(s.Views))
	for _, v := range s.Views {
		if v.HasPose() {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PoseOfView returns the pose of a view and whether the view exists
// and has been resected.
func (s *Scene) PoseOfView(id ViewID) (PoseID, bool) {
	v, ok := s.Views[id]
	if !ok || !v.HasPose() {
		return UndefinedPose, false
	}
	return v.Pose, true
}

// PosesUsingIntrinsic returns the distinct poses of all resected views
// sharing the given intrinsic, sorted ascending.
func (s *Scene) PosesUsingIntrinsic(id IntrinsicID) []PoseID {
	seen := make(map[PoseID]struct{})
	for _, v := range s.Views {
		if v.Intrinsic == id && v.HasPose() {
			seen[v.Pose] = struct{}{}
		}
	}
	out := make([]PoseID, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ViewsUsingIntrinsic returns the ids of all views sharing the given
// intrinsic, posed or not, sorted ascending.
func (s *Scene) ViewsUsingIntrinsic(id IntrinsicID) []ViewID {
	var out []ViewID
	for _, v := range s.Views {
		if v.Intrinsic == id {
			out = append(out, v.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
