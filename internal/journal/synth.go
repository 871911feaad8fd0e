package journal

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/parallax-data/bundle.scope/internal/localba"
	"github.com/parallax-data/bundle.scope/internal/sfm"
)

// SynthConfig controls the synthetic corridor generator. Zero fields
// take the stock corridor shape.
type SynthConfig struct {
	Rounds        int   // adjustment rounds to record
	ViewsPerRound int   // views resected per round
	Cameras       int   // intrinsic groups, one per contiguous capture session
	Seed          int64 // rng seed; the same seed yields the same journal

	// Each view tracks TracksPerView landmarks starting TrackStride
	// past the previous view's first landmark, so neighbouring views
	// overlap and co-visibility falls off with corridor distance.
	TracksPerView int
	TrackStride   int
}

func (c SynthConfig) withDefaults() SynthConfig {
	if c.Rounds <= 0 {
		c.Rounds = 60
	}
	if c.ViewsPerRound <= 0 {
		c.ViewsPerRound = 3
	}
	if c.Cameras <= 0 {
		c.Cameras = 2
	}
	if c.TracksPerView <= 0 {
		c.TracksPerView = 300
	}
	if c.TrackStride <= 0 {
		c.TrackStride = 100
	}
	return c
}

const (
	// focalDecay is the per-round factor by which a session's focal
	// estimate approaches its target once the session is underway.
	focalDecay = 0.75
	// focalDither is the stdev of the solver noise layered on every
	// focal estimate. Nonzero so no history ever has zero range.
	focalDither = 0.05
)

// Synthesize builds a corridor-style journal: a walk down a straight
// corridor split into one capture session per camera, each view sharing
// tracks with its corridor neighbours. Focal estimates hold near their
// initial values until their session starts, then decay towards fixed
// targets, so intrinsics freeze one session after another on replay.
func Synthesize(cfg SynthConfig) *Journal {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))

	totalViews := cfg.Rounds * cfg.ViewsPerRound
	perSession := totalViews / cfg.Cameras
	if perSession < 1 {
		perSession = 1
	}
	sessionOf := func(view int) int {
		s := view / perSession
		if s >= cfg.Cameras {
			s = cfg.Cameras - 1
		}
		return s
	}

	initial := make(map[sfm.IntrinsicID]float64, cfg.Cameras)
	target := make(map[sfm.IntrinsicID]float64, cfg.Cameras)
	sessionStart := make(map[sfm.IntrinsicID]int, cfg.Cameras) // first round of the session, 1-based
	for c := 0; c < cfg.Cameras; c++ {
		id := sfm.IntrinsicID(c)
		target[id] = 980 + 45*float64(c)
		initial[id] = target[id] + 25 + 10*rng.Float64()
		sessionStart[id] = (c*perSession)/cfg.ViewsPerRound + 1
	}

	j := &Journal{
		Description: fmt.Sprintf("synthetic corridor: %d rounds, %d views/round, %d camera sessions, seed %d",
			cfg.Rounds, cfg.ViewsPerRound, cfg.Cameras, cfg.Seed),
		Intrinsics: initial,
		Rounds:     make([]Round, 0, cfg.Rounds),
	}

	nextView := 0
	for r := 1; r <= cfg.Rounds; r++ {
		round := Round{Focals: make(map[sfm.IntrinsicID]float64, cfg.Cameras)}

		for i := 0; i < cfg.ViewsPerRound; i++ {
			first := sfm.LandmarkID(nextView * cfg.TrackStride)
			tracks := make([]sfm.LandmarkID, cfg.TracksPerView)
			for k := range tracks {
				tracks[k] = first + sfm.LandmarkID(k)
			}
			round.NewViews = append(round.NewViews, View{
				ID:        sfm.ViewID(nextView),
				Pose:      sfm.PoseID(nextView),
				Intrinsic: sfm.IntrinsicID(sessionOf(nextView)),
				Tracks:    tracks,
			})
			nextView++
		}

		for c := 0; c < cfg.Cameras; c++ {
			id := sfm.IntrinsicID(c)
			amp := initial[id] - target[id]
			if since := r - sessionStart[id]; since >= 0 {
				amp *= math.Pow(focalDecay, float64(since+1))
			}
			round.Focals[id] = target[id] + amp + rng.NormFloat64()*focalDither
		}

		decay := math.Pow(focalDecay, float64(r))
		round.Solve = localba.SolveReport{
			Duration:               time.Duration(40+rng.Intn(25)) * time.Millisecond,
			SuccessfulIterations:   4 + rng.Intn(5),
			UnsuccessfulIterations: rng.Intn(2),
			ResidualBlocks:         cfg.TracksPerView * cfg.ViewsPerRound * 3,
			RMSEInitial:            0.4 + 1.8*decay,
			RMSEFinal:              0.35 + 0.9*decay,
		}
		j.Rounds = append(j.Rounds, round)
	}
	return j
}
