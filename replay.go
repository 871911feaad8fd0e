package main

import (
	"context"
	"log"
	"time"

	"github.com/parallax-data/bundle.scope/internal/journal"
	"github.com/parallax-data/bundle.scope/internal/localba"
	"github.com/parallax-data/bundle.scope/internal/monitor"
	"github.com/parallax-data/bundle.scope/internal/scopedb"
	"github.com/parallax-data/bundle.scope/internal/sfm"
)

// Replay drives a loaded journal through the scope manager, persisting
// round summaries and publishing monitor snapshots as it goes. Rounds,
// Stats and Plotter are each optional.
type Replay struct {
	Manager    *localba.Manager
	Rounds     *scopedb.RoundStore
	Stats      *monitor.ScopeStats
	Plotter    *monitor.FocalPlotter
	HistoryDir string
	Delay      time.Duration
}

// Run replays every journal round in order, stopping early when the
// context is cancelled. The scene is built from the journal; the
// manager must be fresh.
func (rp *Replay) Run(ctx context.Context, j *journal.Journal) {
	scene := j.NewScene()
	tracks := make(sfm.TrackIndex)

	for i := range j.Rounds {
		select {
		case <-ctx.Done():
			log.Printf("Replay interrupted after %d of %d rounds", rp.Manager.Rounds(), len(j.Rounds))
			return
		default:
		}

		round := &j.Rounds[i]
		if len(round.RemovedViews) > 0 {
			rp.Manager.RemoveViews(round.RemovedViews)
		}
		newViews := round.Apply(scene, tracks)

		stats, err := rp.Manager.RunRound(scene, tracks, newViews,
			func(*localba.RoundScope) (localba.SolveReport, error) {
				round.ApplyFocals(scene)
				return round.Solve, nil
			})
		if err != nil {
			log.Printf("Round %d failed: %v", i+1, err)
			return
		}

		rp.publish(stats)

		if rp.Delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(rp.Delay):
			}
		}
	}

	rp.export()
	log.Printf("Replay complete: %d rounds", rp.Manager.Rounds())
}

func (rp *Replay) publish(stats localba.RoundStats) {
	if rp.Rounds != nil {
		rec, err := scopedb.RecordFromStats(stats)
		if err != nil {
			log.Printf("Failed to encode round %d: %v", stats.Round, err)
		} else if err := rp.Rounds.Insert(rec); err != nil {
			log.Printf("Failed to persist round %d: %v", stats.Round, err)
		}
	}
	if rp.Stats != nil {
		rp.Stats.ObserveRound(stats)
		rp.Stats.SetFocalHistories(rp.Manager.IntrinsicHistories())
		rp.Stats.LogRound(stats)
	}
	if rp.Plotter != nil && rp.Plotter.IsEnabled() {
		rp.Plotter.Sample(rp.Manager.IntrinsicHistories(), stats.FrozenIntrinsics)
	}
}

// export writes the post-replay artifacts: per-intrinsic focal history
// files and, when the plotter was started, the focal plot PNGs.
func (rp *Replay) export() {
	if rp.HistoryDir != "" {
		if err := rp.Manager.ExportIntrinsicsHistory(rp.HistoryDir); err != nil {
			log.Printf("Failed to export focal histories: %v", err)
		} else {
			log.Printf("Exported focal histories to %s", rp.HistoryDir)
		}
	}
	if rp.Plotter != nil && rp.Plotter.IsEnabled() {
		if n, err := rp.Plotter.GeneratePlots(); err != nil {
			log.Printf("Failed to render focal plots: %v", err)
		} else {
			log.Printf("Wrote %d focal plots to %s", n, rp.Plotter.GetOutputDir())
		}
	}
}
