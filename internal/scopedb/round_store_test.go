package scopedb

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/parallax-data/bundle.scope/internal/localba"
	"github.com/parallax-data/bundle.scope/internal/sfm"
)

func newTestStore(t *testing.T) *RoundStore {
	t.Helper()
	db := setupTestDB(t)
	return NewRoundStore(db.DB)
}

func sampleRecord(seq int64) *RoundRecord {
	return &RoundRecord{
		Seq:                seq,
		NewViews:           2,
		GraphViews:         5,
		GraphEdges:         7,
		PosesRefined:       3,
		PosesConstant:      1,
		PosesIgnored:       1,
		IntrinsicsRefined:  1,
		IntrinsicsConstant: 1,
		IntrinsicsIgnored:  0,
		LandmarksRefined:   40,
		LandmarksConstant:  5,
		LandmarksIgnored:   12,
		FrozenIntrinsics:   1,
		HistogramJSON:      json.RawMessage(`{"0":2,"1":1,"2":1,"-1":1}`),
		SolveDurationNs:    (120 * time.Millisecond).Nanoseconds(),
		SolveSuccessIters:  9,
		SolveFailureIters:  1,
		ResidualBlocks:     420,
		RMSEInitial:        1.8,
		RMSEFinal:          0.6,
		GraphUpdateNs:      (3 * time.Millisecond).Nanoseconds(),
		DistancesNs:        (1 * time.Millisecond).Nanoseconds(),
		ClassificationNs:   (2 * time.Millisecond).Nanoseconds(),
		SaveNs:             (1 * time.Millisecond).Nanoseconds(),
	}
}

func TestRoundStoreInsertGeneratesIDs(t *testing.T) {
	store := newTestStore(t)

	rec := sampleRecord(1)
	if err := store.Insert(rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if rec.RoundID == "" {
		t.Error("Expected Insert to generate a round ID")
	}
	if rec.CreatedAt == 0 {
		t.Error("Expected Insert to set CreatedAt")
	}
}

func TestRoundStoreInsertAndGet(t *testing.T) {
	store := newTestStore(t)

	rec := sampleRecord(3)
	rec.RoundID = "round-3"
	rec.CreatedAt = 1700000000000000000
	if err := store.Insert(rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.Get("round-3")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.Seq != 3 {
		t.Errorf("Seq = %d, want 3", got.Seq)
	}
	if got.CreatedAt != rec.CreatedAt {
		t.Errorf("CreatedAt = %d, want %d", got.CreatedAt, rec.CreatedAt)
	}
	if got.PosesRefined != 3 || got.PosesConstant != 1 || got.PosesIgnored != 1 {
		t.Errorf("Pose counts = %d/%d/%d, want 3/1/1",
			got.PosesRefined, got.PosesConstant, got.PosesIgnored)
	}
	if got.LandmarksRefined != 40 {
		t.Errorf("LandmarksRefined = %d, want 40", got.LandmarksRefined)
	}
	if got.SolveDurationNs != (120 * time.Millisecond).Nanoseconds() {
		t.Errorf("SolveDurationNs = %d, want 120ms", got.SolveDurationNs)
	}
	if got.RMSEFinal != 0.6 {
		t.Errorf("RMSEFinal = %f, want 0.6", got.RMSEFinal)
	}

	var hist map[string]int
	if err := json.Unmarshal(got.HistogramJSON, &hist); err != nil {
		t.Fatalf("Failed to unmarshal histogram: %v", err)
	}
	if hist["0"] != 2 || hist["-1"] != 1 {
		t.Errorf("Histogram = %v, want {0:2, -1:1, ...}", hist)
	}
}

func TestRoundStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("no-such-round")
	if err == nil {
		t.Fatal("Expected error for missing round, got nil")
	}
}

func TestRoundStoreListRounds(t *testing.T) {
	store := newTestStore(t)

	for seq := int64(1); seq <= 3; seq++ {
		if err := store.Insert(sampleRecord(seq)); err != nil {
			t.Fatalf("Insert seq %d failed: %v", seq, err)
		}
	}

	recs, err := store.ListRounds(2)
	if err != nil {
		t.Fatalf("ListRounds failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 rounds, got %d", len(recs))
	}
	if recs[0].Seq != 3 || recs[1].Seq != 2 {
		t.Errorf("Expected seqs [3 2], got [%d %d]", recs[0].Seq, recs[1].Seq)
	}

	all, err := store.ListRounds(0)
	if err != nil {
		t.Fatalf("ListRounds(0) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 rounds with default limit, got %d", len(all))
	}
}

func TestRoundStoreLatestRound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.LatestRound(); err == nil {
		t.Error("Expected error on empty store, got nil")
	}

	for seq := int64(1); seq <= 3; seq++ {
		if err := store.Insert(sampleRecord(seq)); err != nil {
			t.Fatalf("Insert seq %d failed: %v", seq, err)
		}
	}

	latest, err := store.LatestRound()
	if err != nil {
		t.Fatalf("LatestRound failed: %v", err)
	}
	if latest.Seq != 3 {
		t.Errorf("LatestRound seq = %d, want 3", latest.Seq)
	}
}

func TestRoundStoreCountRounds(t *testing.T) {
	store := newTestStore(t)

	n, err := store.CountRounds()
	if err != nil {
		t.Fatalf("CountRounds failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 rounds, got %d", n)
	}

	for seq := int64(1); seq <= 5; seq++ {
		if err := store.Insert(sampleRecord(seq)); err != nil {
			t.Fatalf("Insert seq %d failed: %v", seq, err)
		}
	}

	n, err = store.CountRounds()
	if err != nil {
		t.Fatalf("CountRounds failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 rounds, got %d", n)
	}
}

func TestRecordFromStats(t *testing.T) {
	stats := localba.RoundStats{
		Round:      4,
		NewViews:   []sfm.ViewID{10, 11},
		GraphViews: 6,
		GraphEdges: 9,
		Poses:      localba.StateCount{Refined: 2, Constant: 3, Ignored: 1},
		Intrinsics: localba.StateCount{Refined: 1, Constant: 1, Ignored: 1},
		Landmarks:  localba.StateCount{Refined: 30, Constant: 4, Ignored: 8},
		DistanceHistogram: map[int]int{
			0:  2,
			1:  3,
			-1: 1,
		},
		FrozenIntrinsics: []sfm.IntrinsicID{0, 2},
		Solve: localba.SolveReport{
			Duration:               90 * time.Millisecond,
			SuccessfulIterations:   8,
			UnsuccessfulIterations: 2,
			ResidualBlocks:         310,
			RMSEInitial:            2.2,
			RMSEFinal:              0.9,
		},
		Timings: localba.RoundTimings{
			GraphUpdate:    4 * time.Millisecond,
			Distances:      2 * time.Millisecond,
			Classification: 3 * time.Millisecond,
			Solve:          90 * time.Millisecond,
			Save:           1 * time.Millisecond,
		},
	}

	rec, err := RecordFromStats(stats)
	if err != nil {
		t.Fatalf("RecordFromStats failed: %v", err)
	}

	if rec.Seq != 4 {
		t.Errorf("Seq = %d, want 4", rec.Seq)
	}
	if rec.NewViews != 2 {
		t.Errorf("NewViews = %d, want 2", rec.NewViews)
	}
	if rec.PosesConstant != 3 {
		t.Errorf("PosesConstant = %d, want 3", rec.PosesConstant)
	}
	if rec.FrozenIntrinsics != 2 {
		t.Errorf("FrozenIntrinsics = %d, want 2", rec.FrozenIntrinsics)
	}
	if rec.SolveDurationNs != (90 * time.Millisecond).Nanoseconds() {
		t.Errorf("SolveDurationNs = %d, want 90ms", rec.SolveDurationNs)
	}
	if rec.GraphUpdateNs != (4 * time.Millisecond).Nanoseconds() {
		t.Errorf("GraphUpdateNs = %d, want 4ms", rec.GraphUpdateNs)
	}

	var hist map[string]int
	if err := json.Unmarshal(rec.HistogramJSON, &hist); err != nil {
		t.Fatalf("Failed to unmarshal histogram: %v", err)
	}
	if hist["-1"] != 1 || hist["0"] != 2 || hist["1"] != 3 {
		t.Errorf("Histogram = %v, want {-1:1, 0:2, 1:3}", hist)
	}

	// Round-trip through the store.
	store := newTestStore(t)
	if err := store.Insert(rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, err := store.Get(rec.RoundID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Seq != rec.Seq || got.RMSEFinal != rec.RMSEFinal {
		t.Errorf("Round-trip mismatch: got seq %d rmse %f", got.Seq, got.RMSEFinal)
	}
}

func TestRetryOnBusy(t *testing.T) {
	t.Run("success passes through", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("Expected 1 call, got %d", calls)
		}
	})

	t.Run("non-busy error returns immediately", func(t *testing.T) {
		calls := 0
		wantErr := errors.New("constraint failed")
		err := retryOnBusy(func() error {
			calls++
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Errorf("Expected %v, got %v", wantErr, err)
		}
		if calls != 1 {
			t.Errorf("Expected 1 call, got %d", calls)
		}
	})

	t.Run("busy error is retried", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		if err != nil {
			t.Errorf("Expected nil after retries, got %v", err)
		}
		if calls != 3 {
			t.Errorf("Expected 3 calls, got %d", calls)
		}
	})
}
