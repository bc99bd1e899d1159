// Package db journals estimation runs to sqlite. The journal is an
// observability surface: the estimation pipeline itself never reads from
// it, so a journal failure degrades reporting, not estimation.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/skyward-data/groundtrack.report/internal/estimate"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the journal database at path. The schema is
// managed by migrations; callers run MigrateUp before first use.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// The journal is written from the sample hook and the diagnostic sink,
	// which may run concurrently with API reads.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	return &DB{db}, nil
}

// Run status values.
const (
	RunStatusActive     = "active"
	RunStatusFinalized  = "finalized"
	RunStatusNoEstimate = "no_estimate"
)

// RunRecord is one estimation window as journaled.
type RunRecord struct {
	RunID            uuid.UUID  `json:"run_id"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Status           string     `json:"status"`
	FinalSpeedMPS    *float64   `json:"final_speed_mps,omitempty"`
	CombinedVariance *float64   `json:"combined_variance,omitempty"`
	SampleCount      int        `json:"sample_count"`
	PoolSize         int        `json:"pool_size"`
	RejectionCount   int        `json:"rejection_count"`
	GeotagOnly       bool       `json:"geotag_only"`
	Display          string     `json:"display,omitempty"`
}

// SampleRecord is one accepted speed sample.
type SampleRecord struct {
	RunID          uuid.UUID           `json:"run_id"`
	Seq            int                 `json:"seq"`
	Source         estimate.SourceKind `json:"source"`
	SpeedMPS       float64             `json:"speed_mps"`
	DistanceMeters float64             `json:"distance_m"`
	ElapsedSeconds float64             `json:"elapsed_s"`
	MatchedPoints  int                 `json:"matched_points"`
	ObservedAt     time.Time           `json:"observed_at"`
}

// RejectionRecord is one discarded observation.
type RejectionRecord struct {
	RunID      uuid.UUID             `json:"run_id"`
	Reason     estimate.RejectReason `json:"reason"`
	Source     estimate.SourceKind   `json:"source"`
	Detail     string                `json:"detail"`
	ObservedAt time.Time             `json:"observed_at"`
}

// CreateRun registers a new window before accumulation starts.
func (db *DB) CreateRun(runID uuid.UUID, startedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, started_at, status) VALUES (?, ?, ?)`,
		runID.String(), startedAt.UTC(), RunStatusActive,
	)
	if err != nil {
		return fmt.Errorf("creating run %s: %w", runID, err)
	}
	return nil
}

// RecordSample journals one accepted sample in arrival order.
func (db *DB) RecordSample(runID uuid.UUID, seq int, s estimate.SpeedSample) error {
	_, err := db.Exec(
		`INSERT INTO speed_samples (
			run_id, seq, source, speed_mps, distance_m, elapsed_s,
			matched_points, observed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), seq, string(s.Source), s.SpeedMPS, s.DistanceMeters,
		s.ElapsedSeconds, s.MatchedPoints, s.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording sample %d for run %s: %w", seq, runID, err)
	}
	return nil
}

// RecordRejection journals one discarded observation.
func (db *DB) RecordRejection(runID uuid.UUID, r estimate.Rejection, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO rejections (run_id, reason, source, detail, observed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		runID.String(), string(r.Reason), string(r.Source), r.Detail, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording rejection for run %s: %w", runID, err)
	}
	return nil
}

// FinalizeRun stamps the run's outcome. res may be nil when the window
// produced no valid estimate.
func (db *DB) FinalizeRun(runID uuid.UUID, finishedAt time.Time, res *estimate.FusionResult, rejections int, geotagOnly bool, display string) error {
	status := RunStatusNoEstimate
	var speed, variance *float64
	sampleCount, poolSize := 0, 0
	if res != nil {
		status = RunStatusFinalized
		speed = &res.FinalSpeedMPS
		variance = &res.CombinedVariance
		sampleCount = res.SampleCount
		poolSize = res.PoolSize
	}

	_, err := db.Exec(
		`UPDATE runs SET
			finished_at = ?, status = ?, final_speed_mps = ?,
			combined_variance = ?, sample_count = ?, pool_size = ?,
			rejection_count = ?, geotag_only = ?, display = ?
		 WHERE run_id = ?`,
		finishedAt.UTC(), status, speed, variance, sampleCount, poolSize,
		rejections, geotagOnly, display, runID.String(),
	)
	if err != nil {
		return fmt.Errorf("finalizing run %s: %w", runID, err)
	}
	return nil
}

const runColumns = `run_id, started_at, finished_at, status, final_speed_mps,
	combined_variance, sample_count, pool_size, rejection_count, geotag_only, display`

func scanRun(row interface{ Scan(...interface{}) error }) (RunRecord, error) {
	var r RunRecord
	var id string
	var display sql.NullString
	err := row.Scan(
		&id, &r.StartedAt, &r.FinishedAt, &r.Status, &r.FinalSpeedMPS,
		&r.CombinedVariance, &r.SampleCount, &r.PoolSize, &r.RejectionCount,
		&r.GeotagOnly, &display,
	)
	if err != nil {
		return RunRecord{}, err
	}
	r.RunID, err = uuid.Parse(id)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parsing run_id %q: %w", id, err)
	}
	r.Display = display.String
	return r, nil
}

// LatestRun returns the most recently started run, or sql.ErrNoRows when
// the journal is empty.
func (db *DB) LatestRun() (RunRecord, error) {
	row := db.QueryRow(
		`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`,
	)
	return scanRun(row)
}

// GetRun returns one run by ID.
func (db *DB) GetRun(runID uuid.UUID) (RunRecord, error) {
	row := db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID.String(),
	)
	return scanRun(row)
}

// Runs lists journaled runs, newest first.
func (db *DB) Runs(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SamplesForRun returns the run's accepted samples in arrival order.
func (db *DB) SamplesForRun(runID uuid.UUID) ([]SampleRecord, error) {
	rows, err := db.Query(
		`SELECT run_id, seq, source, speed_mps, distance_m, elapsed_s,
			matched_points, observed_at
		 FROM speed_samples WHERE run_id = ? ORDER BY seq ASC`,
		runID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []SampleRecord
	for rows.Next() {
		var s SampleRecord
		var id, source string
		if err := rows.Scan(&id, &s.Seq, &source, &s.SpeedMPS, &s.DistanceMeters,
			&s.ElapsedSeconds, &s.MatchedPoints, &s.ObservedAt); err != nil {
			return nil, err
		}
		s.RunID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parsing run_id %q: %w", id, err)
		}
		s.Source = estimate.SourceKind(source)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// RejectionsForRun returns the run's diagnostics in journal order.
func (db *DB) RejectionsForRun(runID uuid.UUID) ([]RejectionRecord, error) {
	rows, err := db.Query(
		`SELECT run_id, reason, source, detail, observed_at
		 FROM rejections WHERE run_id = ? ORDER BY rowid ASC`,
		runID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rejections []RejectionRecord
	for rows.Next() {
		var r RejectionRecord
		var id, reason, source string
		if err := rows.Scan(&id, &reason, &source, &r.Detail, &r.ObservedAt); err != nil {
			return nil, err
		}
		r.RunID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parsing run_id %q: %w", id, err)
		}
		r.Reason = estimate.RejectReason(reason)
		r.Source = estimate.SourceKind(source)
		rejections = append(rejections, r)
	}
	return rejections, rows.Err()
}
