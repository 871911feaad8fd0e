package monitor

import (
	"testing"
	"time"

	"github.com/parallax-data/bundle.scope/internal/localba"
	"github.com/parallax-data/bundle.scope/internal/sfm"
)

func sampleRoundStats(round int64) localba.RoundStats {
	return localba.RoundStats{
		Round:             round,
		NewViews:          []sfm.ViewID{1, 2},
		GraphViews:        4,
		GraphEdges:        3,
		Poses:             localba.StateCount{Refined: 3, Constant: 1},
		Intrinsics:        localba.StateCount{Refined: 1},
		Landmarks:         localba.StateCount{Refined: 5, Ignored: 2},
		DistanceHistogram: map[int]int{0: 2, 1: 1, 2: 1},
		Solve:             localba.SolveReport{Duration: 120 * time.Millisecond, SuccessfulIterations: 8},
		Timings:           localba.RoundTimings{GraphUpdate: time.Millisecond},
	}
}

func TestScopeStatsObserveRound(t *testing.T) {
	ss := NewScopeStats()

	if ss.RoundCount() != 0 {
		t.Errorf("expected 0 rounds initially, got %d", ss.RoundCount())
	}
	if ss.LatestSnapshot() != nil {
		t.Error("expected nil snapshot before any round")
	}

	ss.ObserveRound(sampleRoundStats(1))
	ss.ObserveRound(sampleRoundStats(2))

	if ss.RoundCount() != 2 {
		t.Errorf("expected 2 rounds, got %d", ss.RoundCount())
	}

	snap := ss.LatestSnapshot()
	if snap == nil {
		t.Fatal("expected snapshot after observing rounds")
	}
	if snap.Round != 2 {
		t.Errorf("expected latest round 2, got %d", snap.Round)
	}
	if snap.Timestamp.IsZero() {
		t.Error("expected snapshot timestamp to be set")
	}
	if snap.Poses.Refined != 3 {
		t.Errorf("expected 3 refined poses, got %d", snap.Poses.Refined)
	}
}

func TestScopeStatsLatestSnapshotIsCopy(t *testing.T) {
	ss := NewScopeStats()
	ss.ObserveRound(sampleRoundStats(1))

	first := ss.LatestSnapshot()
	first.Round = 99

	second := ss.LatestSnapshot()
	if second.Round != 1 {
		t.Errorf("mutating a returned snapshot leaked into stats: round %d", second.Round)
	}
}

func TestScopeStatsRoundsOrder(t *testing.T) {
	ss := NewScopeStats()
	for i := int64(1); i <= 3; i++ {
		ss.ObserveRound(sampleRoundStats(i))
	}

	rounds := ss.Rounds()
	if len(rounds) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(rounds))
	}
	for i, snap := range rounds {
		if snap.Round != int64(i+1) {
			t.Errorf("rounds[%d]: expected round %d, got %d", i, i+1, snap.Round)
		}
	}
}

func TestScopeStatsFocalHistories(t *testing.T) {
	ss := NewScopeStats()
	if len(ss.FocalHistories()) != 0 {
		t.Error("expected no focal histories initially")
	}

	ss.SetFocalHistories(map[sfm.IntrinsicID][]localba.FocalSample{
		0: {{PoseCount: 2, Focal: 1000}, {PoseCount: 3, Focal: 1001}},
		1: {{PoseCount: 2, Focal: 900}},
	})

	got := ss.FocalHistories()
	if len(got) != 2 {
		t.Fatalf("expected 2 histories, got %d", len(got))
	}
	if len(got[0]) != 2 || got[0][1].Focal != 1001 {
		t.Errorf("unexpected history for intrinsic 0: %+v", got[0])
	}

	// Mutating the returned map must not affect retained state.
	delete(got, 0)
	if len(ss.FocalHistories()) != 2 {
		t.Error("deleting from a returned map leaked into stats")
	}
}

func TestScopeStatsUptime(t *testing.T) {
	ss := NewScopeStats()
	if ss.Uptime() < 0 {
		t.Error("expected non-negative uptime")
	}
}

func TestScopeStatsLogRound(t *testing.T) {
	ss := NewScopeStats()
	// Should not panic on a zero-value stats struct.
	ss.LogRound(localba.RoundStats{})
	ss.LogRound(sampleRoundStats(1))
}
