package localba

import (
	"time"

	"github.com/parallax-data/bundle.scope/internal/sfm"
)

// SolveReport carries what the external optimizer reports back about
// one adjustment. All fields are optional diagnostics; the manager
// stores them with the round but never acts on them.
type SolveReport struct {
	Duration               time.Duration `json:"duration"`
	SuccessfulIterations   int           `json:"successful_iterations"`
	UnsuccessfulIterations int           `json:"unsuccessful_iterations"`
	ResidualBlocks         int           `json:"residual_blocks"`
	RMSEInitial            float64       `json:"rmse_initial"`
	RMSEFinal              float64       `json:"rmse_final"`
}

// RoundScope is the snapshot handed to the optimizer: the participation
// state of every parameter block plus the distances they were derived
// from. All maps are copies; mutating them does not touch the manager.
type RoundScope struct {
	PoseStates      map[sfm.PoseID]ParamState
	IntrinsicStates map[sfm.IntrinsicID]ParamState
	LandmarkStates  map[sfm.LandmarkID]ParamState
	ViewDistances   map[sfm.ViewID]int
	PoseDistances   map[sfm.PoseID]int
}

// RoundStats summarizes one completed round for storage and reporting.
type RoundStats struct {
	Round             int64             `json:"round"`
	NewViews          []sfm.ViewID      `json:"new_views"`
	GraphViews        int               `json:"graph_views"`
	GraphEdges        int               `json:"graph_edges"`
	Poses             StateCount        `json:"poses"`
	Intrinsics        StateCount        `json:"intrinsics"`
	Landmarks         StateCount        `json:"landmarks"`
	DistanceHistogram map[int]int       `json:"distance_histogram"`
	FrozenIntrinsics  []sfm.IntrinsicID `json:"frozen_intrinsics"`
	Solve             SolveReport       `json:"solve"`
	Timings           RoundTimings      `json:"timings"`
}
