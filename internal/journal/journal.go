// Package journal defines the recorded resection log the scope service
// replays: per-round scene deltas and solver outcomes captured from an
// incremental reconstruction, serialized as JSON.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parallax-data/bundle.scope/internal/localba"
	"github.com/parallax-data/bundle.scope/internal/sfm"
)

// View is one newly resected view: its pose, intrinsic group and the
// landmarks its features track.
type View struct {
	ID        sfm.ViewID       `json:"view"`
	Pose      sfm.PoseID       `json:"pose"`
	Intrinsic sfm.IntrinsicID  `json:"intrinsic"`
	Tracks    []sfm.LandmarkID `json:"tracks"`
}

// Round is one recorded adjustment round: the views resected since the
// previous round, the views evicted before it, the focal lengths the
// optimizer left behind and the optimizer's own report.
type Round struct {
	NewViews     []View                      `json:"new_views"`
	RemovedViews []sfm.ViewID                `json:"removed_views,omitempty"`
	Focals       map[sfm.IntrinsicID]float64 `json:"focals,omitempty"`
	Solve        localba.SolveReport         `json:"solve"`
}

// Journal is a replayable resection log. Intrinsics carries the initial
// focal length of every intrinsic group the rounds reference.
type Journal struct {
	Description string                      `json:"description,omitempty"`
	Intrinsics  map[sfm.IntrinsicID]float64 `json:"intrinsics"`
	Rounds      []Round                     `json:"rounds"`
}

// Load reads and validates a journal file.
func Load(path string) (*Journal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse journal %s: %w", filepath.Base(path), err)
	}
	if err := j.Validate(); err != nil {
		return nil, fmt.Errorf("invalid journal %s: %w", filepath.Base(path), err)
	}
	return &j, nil
}

// Save writes a journal as indented JSON.
func Save(path string, j *Journal) error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Validate checks that the journal is self-consistent: every view is
// resected at most once, carries a defined pose and a known intrinsic,
// and removals only name views resected in an earlier round.
func (j *Journal) Validate() error {
	resected := make(map[sfm.ViewID]int)
	for ri := range j.Rounds {
		r := &j.Rounds[ri]
		for _, id := range r.RemovedViews {
			if _, ok := resected[id]; !ok {
				return fmt.Errorf("round %d: removes view %d before it was resected", ri+1, id)
			}
			delete(resected, id)
		}
		for _, v := range r.NewViews {
			if v.Pose == sfm.UndefinedPose {
				return fmt.Errorf("round %d: view %d has no pose", ri+1, v.ID)
			}
			if _, ok := j.Intrinsics[v.Intrinsic]; !ok {
				return fmt.Errorf("round %d: view %d references unknown intrinsic %d", ri+1, v.ID, v.Intrinsic)
			}
			if prev, ok := resected[v.ID]; ok {
				return fmt.Errorf("round %d: view %d already resected in round %d", ri+1, v.ID, prev)
			}
			resected[v.ID] = ri + 1
		}
		for id := range r.Focals {
			if _, ok := j.Intrinsics[id]; !ok {
				return fmt.Errorf("round %d: focal recorded for unknown intrinsic %d", ri+1, id)
			}
		}
	}
	return nil
}

// NewScene builds a scene seeded with the journal's intrinsic groups at
// their initial focal lengths.
func (j *Journal) NewScene() *sfm.Scene {
	scene := sfm.NewScene()
	for id, focal := range j.Intrinsics {
		scene.AddIntrinsic(sfm.Intrinsic{ID: id, FocalLength: focal})
	}
	return scene
}

// Apply commits the round's scene delta: removals first, then the new
// views with their tracks and landmark observations. Returns the ids of
// the views added, in journal order.
func (r *Round) Apply(scene *sfm.Scene, tracks sfm.TrackIndex) []sfm.ViewID {
	for _, id := range r.RemovedViews {
		scene.RemoveView(id)
		delete(tracks, id)
	}
	added := make([]sfm.ViewID, 0, len(r.NewViews))
	for _, v := range r.NewViews {
		scene.AddView(sfm.View{ID: v.ID, Pose: v.Pose, Intrinsic: v.Intrinsic})
		tracks.Insert(v.ID, v.Tracks...)
		for _, lm := range v.Tracks {
			scene.ObserveLandmark(lm, v.Pose)
		}
		added = append(added, v.ID)
	}
	return added
}

// ApplyFocals writes the round's post-solve focal lengths into the
// scene, as the optimizer would have.
func (r *Round) ApplyFocals(scene *sfm.Scene) {
	for id, focal := range r.Focals {
		scene.SetFocalLength(id, focal)
	}
}
