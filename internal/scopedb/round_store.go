package scopedb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parallax-data/bundle.scope/internal/localba"
)

// RoundRecord is one persisted round summary. The distance histogram is
// stored as JSON keyed by hop count, with unreachable poses under "-1".
type RoundRecord struct {
	RoundID   string `json:"round_id"`
	Seq       int64  `json:"seq"`
	CreatedAt int64  `json:"created_at"`

	NewViews   int `json:"new_views"`
	GraphViews int `json:"graph_views"`
	GraphEdges int `json:"graph_edges"`

	PosesRefined  int `json:"poses_refined"`
	PosesConstant int `json:"poses_constant"`
	PosesIgnored  int `json:"poses_ignored"`

	IntrinsicsRefined  int `json:"intrinsics_refined"`
	IntrinsicsConstant int `json:"intrinsics_constant"`
	IntrinsicsIgnored  int `json:"intrinsics_ignored"`

	LandmarksRefined  int `json:"landmarks_refined"`
	LandmarksConstant int `json:"landmarks_constant"`
	LandmarksIgnored  int `json:"landmarks_ignored"`

	FrozenIntrinsics int             `json:"frozen_intrinsics"`
	HistogramJSON    json.RawMessage `json:"histogram_json,omitempty"`

	SolveDurationNs   int64   `json:"solve_duration_ns"`
	SolveSuccessIters int     `json:"solve_success_iters"`
	SolveFailureIters int     `json:"solve_failure_iters"`
	ResidualBlocks    int     `json:"residual_blocks"`
	RMSEInitial       float64 `json:"rmse_initial"`
	RMSEFinal         float64 `json:"rmse_final"`

	GraphUpdateNs    int64 `json:"graph_update_ns"`
	DistancesNs      int64 `json:"distances_ns"`
	ClassificationNs int64 `json:"classification_ns"`
	SaveNs           int64 `json:"save_ns"`
}

// RecordFromStats flattens a round summary into a storable record.
func RecordFromStats(stats localba.RoundStats) (*RoundRecord, error) {
	hist, err := json.Marshal(stats.DistanceHistogram)
	if err != nil {
		return nil, fmt.Errorf("marshal histogram: %w", err)
	}
	return &RoundRecord{
		Seq:                stats.Round,
		NewViews:           len(stats.NewViews),
		GraphViews:         stats.GraphViews,
		GraphEdges:         stats.GraphEdges,
		PosesRefined:       stats.Poses.Refined,
		PosesConstant:      stats.Poses.Constant,
		PosesIgnored:       stats.Poses.Ignored,
		IntrinsicsRefined:  stats.Intrinsics.Refined,
		IntrinsicsConstant: stats.Intrinsics.Constant,
		IntrinsicsIgnored:  stats.Intrinsics.Ignored,
		LandmarksRefined:   stats.Landmarks.Refined,
		LandmarksConstant:  stats.Landmarks.Constant,
		LandmarksIgnored:   stats.Landmarks.Ignored,
		FrozenIntrinsics:   len(stats.FrozenIntrinsics),
		HistogramJSON:      hist,
		SolveDurationNs:    stats.Solve.Duration.Nanoseconds(),
		SolveSuccessIters:  stats.Solve.SuccessfulIterations,
		SolveFailureIters:  stats.Solve.UnsuccessfulIterations,
		ResidualBlocks:     stats.Solve.ResidualBlocks,
		RMSEInitial:        stats.Solve.RMSEInitial,
		RMSEFinal:          stats.Solve.RMSEFinal,
		GraphUpdateNs:      stats.Timings.GraphUpdate.Nanoseconds(),
		DistancesNs:        stats.Timings.Distances.Nanoseconds(),
		ClassificationNs:   stats.Timings.Classification.Nanoseconds(),
		SaveNs:             stats.Timings.Save.Nanoseconds(),
	}, nil
}

// RoundStore provides persistence for round summaries.
type RoundStore struct {
	db *sql.DB
}

// NewRoundStore creates a new RoundStore.
func NewRoundStore(db *sql.DB) *RoundStore {
	return &RoundStore{db: db}
}

const roundColumns = `round_id, seq, created_at, new_views, graph_views, graph_edges,
	poses_refined, poses_constant, poses_ignored,
	intrinsics_refined, intrinsics_constant, intrinsics_ignored,
	landmarks_refined, landmarks_constant, landmarks_ignored,
	frozen_intrinsics, histogram_json,
	solve_duration_ns, solve_success_iters, solve_failure_iters,
	residual_blocks, rmse_initial, rmse_final,
	graph_update_ns, distances_ns, classification_ns, save_ns`

// Insert persists a new round record. If RoundID is empty, a UUID is
// generated. If CreatedAt is zero, the current time is used.
func (s *RoundStore) Insert(rec *RoundRecord) error {
	if rec.RoundID == "" {
		rec.RoundID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixNano()
	}

	var histStr interface{}
	if len(rec.HistogramJSON) > 0 {
		histStr = string(rec.HistogramJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO ba_rounds (`+roundColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RoundID, rec.Seq, rec.CreatedAt, rec.NewViews, rec.GraphViews, rec.GraphEdges,
			rec.PosesRefined, rec.PosesConstant, rec.PosesIgnored,
			rec.IntrinsicsRefined, rec.IntrinsicsConstant, rec.IntrinsicsIgnored,
			rec.LandmarksRefined, rec.LandmarksConstant, rec.LandmarksIgnored,
			rec.FrozenIntrinsics, histStr,
			rec.SolveDurationNs, rec.SolveSuccessIters, rec.SolveFailureIters,
			rec.ResidualBlocks, rec.RMSEInitial, rec.RMSEFinal,
			rec.GraphUpdateNs, rec.DistancesNs, rec.ClassificationNs, rec.SaveNs,
		)
		return err
	})
}

// Get returns a single round record by ID.
func (s *RoundStore) Get(roundID string) (*RoundRecord, error) {
	row := s.db.QueryRow(`
		SELECT `+roundColumns+`
		FROM ba_rounds
		WHERE round_id = ?`, roundID)

	rec, err := scanRound(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("round %s not found", roundID)
		}
		return nil, fmt.Errorf("scan round: %w", err)
	}
	return rec, nil
}

// ListRounds returns the most recent rounds ordered by sequence number
// descending. A non-positive limit returns up to 100 rounds.
func (s *RoundStore) ListRounds(limit int) ([]*RoundRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT `+roundColumns+`
		FROM ba_rounds
		ORDER BY seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var recs []*RoundRecord
	for rows.Next() {
		rec, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LatestRound returns the round with the highest sequence number.
func (s *RoundStore) LatestRound() (*RoundRecord, error) {
	row := s.db.QueryRow(`
		SELECT ` + roundColumns + `
		FROM ba_rounds
		ORDER BY seq DESC
		LIMIT 1`)

	rec, err := scanRound(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no rounds recorded")
		}
		return nil, fmt.Errorf("scan round: %w", err)
	}
	return rec, nil
}

// CountRounds returns the number of stored rounds.
func (s *RoundStore) CountRounds() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ba_rounds`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rounds: %w", err)
	}
	return n, nil
}

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRound(row rowScanner) (*RoundRecord, error) {
	var rec RoundRecord
	var histStr sql.NullString
	err := row.Scan(
		&rec.RoundID, &rec.Seq, &rec.CreatedAt, &rec.NewViews, &rec.GraphViews, &rec.GraphEdges,
		&rec.PosesRefined, &rec.PosesConstant, &rec.PosesIgnored,
		&rec.IntrinsicsRefined, &rec.IntrinsicsConstant, &rec.IntrinsicsIgnored,
		&rec.LandmarksRefined, &rec.LandmarksConstant, &rec.LandmarksIgnored,
		&rec.FrozenIntrinsics, &histStr,
		&rec.SolveDurationNs, &rec.SolveSuccessIters, &rec.SolveFailureIters,
		&rec.ResidualBlocks, &rec.RMSEInitial, &rec.RMSEFinal,
		&rec.GraphUpdateNs, &rec.DistancesNs, &rec.ClassificationNs, &rec.SaveNs,
	)
	if err != nil {
		return nil, err
	}
	if histStr.Valid {
		rec.HistogramJSON = json.RawMessage(histStr.String)
	}
	return &rec, nil
}
