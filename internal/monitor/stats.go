// Package monitor provides the diagnostics HTTP server for the scope
// manager: health and status endpoints, per-round statistics, and
// debug charts over the distance histogram and focal histories.
package monitor

import (
	"log"
	"sync"
	"time"

	"github.com/parallax-data/bundle.scope/internal/localba"
	"github.com/parallax-data/bundle.scope/internal/sfm"
)

// RoundSnapshot is one completed round's statistics plus the wall time
// it was observed, as served by the status endpoints.
type RoundSnapshot struct {
	localba.RoundStats
	Timestamp time.Time `json:"timestamp"`
}

// ScopeStats tracks per-round scope statistics with thread-safe
// operations. The round loop publishes into it; HTTP handlers only
// read from it.
type ScopeStats struct {
	mu        sync.Mutex
	startTime time.Time
	rounds    []RoundSnapshot
	latest    *RoundSnapshot
	focals    map[sfm.IntrinsicID][]localba.FocalSample
}

// NewScopeStats creates a new ScopeStats instance
func NewScopeStats() *ScopeStats {
	return &ScopeStats{
		startTime: time.Now(),
		focals:    make(map[sfm.IntrinsicID][]localba.FocalSample),
	}
}

// ObserveRound stores the statistics of a completed round for the web
// interface.
func (ss *ScopeStats) ObserveRound(rs localba.RoundStats) {
	snap := RoundSnapshot{RoundStats: rs, Timestamp: time.Now()}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.rounds = append(ss.rounds, snap)
	ss.latest = &snap
}

// SetFocalHistories replaces the retained focal histories. Callers
// pass the manager's own copy; ScopeStats takes ownership of the map.
func (ss *ScopeStats) SetFocalHistories(histories map[sfm.IntrinsicID][]localba.FocalSample) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.focals = histories
}

// LatestSnapshot returns the most recent round snapshot for the web
// interface, or nil before the first round.
func (ss *ScopeStats) LatestSnapshot() *RoundSnapshot {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.latest == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *ss.latest
	return &snapshot
}

// RoundCount returns the number of rounds observed so far.
func (ss *ScopeStats) RoundCount() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.rounds)
}

// Rounds returns a copy of every observed round snapshot, oldest first.
func (ss *ScopeStats) Rounds() []RoundSnapshot {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return append([]RoundSnapshot(nil), ss.rounds...)
}

// FocalHistories returns the retained focal histories. The sample
// slices are shared with the retained copy; they are never mutated
// after SetFocalHistories.
func (ss *ScopeStats) FocalHistories() map[sfm.IntrinsicID][]localba.FocalSample {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	out := make(map[sfm.IntrinsicID][]localba.FocalSample, len(ss.focals))
	for id, hist := range ss.focals {
		out[id] = hist
	}
	return out
}

// LogRound logs a one-line summary of a completed round. State counts
// read refined/constant/ignored.
func (ss *ScopeStats) LogRound(rs localba.RoundStats) {
	log.Printf("Scope round %d: %d new views, graph %dv/%de, poses %d/%d/%d, intrinsics %d/%d/%d (%d frozen), landmarks %d/%d/%d, %v",
		rs.Round, len(rs.NewViews), rs.GraphViews, rs.GraphEdges,
		rs.Poses.Refined, rs.Poses.Constant, rs.Poses.Ignored,
		rs.Intrinsics.Refined, rs.Intrinsics.Constant, rs.Intrinsics.Ignored, len(rs.FrozenIntrinsics),
		rs.Landmarks.Refined, rs.Landmarks.Constant, rs.Landmarks.Ignored,
		rs.Timings)
}

// Uptime returns the time since the stats were created
func (ss *ScopeStats) Uptime() time.Duration {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return time.Since(ss.startTime)
}
