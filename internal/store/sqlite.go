package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    baseline TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment TEXT NOT NULL,
    alternative TEXT NOT NULL,
    period TEXT NOT NULL DEFAULT '',
    exposures INTEGER NOT NULL CHECK (exposures >= 0),
    conversions INTEGER NOT NULL CHECK (conversions >= 0 AND conversions <= exposures),
    value REAL NOT NULL DEFAULT 0 CHECK (value >= 0),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment) REFERENCES experiments(name)
);

CREATE INDEX IF NOT EXISTS idx_observations_experiment ON observations(experiment);
CREATE UNIQUE INDEX IF NOT EXISTS idx_observations_period ON observations(experiment, alternative, period);
`

const upsertObservation = `
INSERT INTO observations (experiment, alternative, period, exposures, conversions, value, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (experiment, alternative, period) DO UPDATE SET
    exposures = excluded.exposures,
    conversions = excluded.conversions,
    value = excluded.value,
    updated_at = excluded.updated_at`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveExperiment creates the experiment or updates its baseline. An empty
// baseline leaves the stored one untouched.
func (s *SQLiteStore) SaveExperiment(ctx context.Context, name, baseline string) (*Experiment, error) {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (name, baseline, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
		     baseline = CASE WHEN excluded.baseline = '' THEN experiments.baseline ELSE excluded.baseline END,
		     updated_at = excluded.updated_at`,
		name, baseline, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save experiment: %w", err)
	}

	return s.GetExperiment(ctx, name)
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, name string) (*Experiment, error) {
	var exp Experiment
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, baseline, created_at, updated_at FROM experiments WHERE name = ?`, name,
	).Scan(&exp.ID, &exp.Name, &exp.Baseline, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*ExperimentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			e.id, e.name, e.baseline, e.created_at, e.updated_at,
			COUNT(DISTINCT o.alternative),
			COUNT(DISTINCT o.period),
			COALESCE(SUM(o.exposures), 0),
			COALESCE(SUM(o.conversions), 0),
			COALESCE(SUM(o.value), 0)
		FROM experiments e
		LEFT JOIN observations o ON o.experiment = e.name
		GROUP BY e.id
		ORDER BY e.updated_at DESC, e.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var out []*ExperimentSummary
	for rows.Next() {
		var sum ExperimentSummary
		var createdAt, updatedAt int64

		err := rows.Scan(&sum.ID, &sum.Name, &sum.Baseline, &createdAt, &updatedAt,
			&sum.Alternatives, &sum.Periods, &sum.Exposures, &sum.Conversions, &sum.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}

		sum.CreatedAt = time.Unix(createdAt, 0)
		sum.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, &sum)
	}

	return out, rows.Err()
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// First delete related observations
	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE experiment = ?`, name); err != nil {
		return fmt.Errorf("failed to delete observations: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM experiments WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// RecordObservation upserts one period of one alternative, creating the
// experiment on first use.
func (s *SQLiteStore) RecordObservation(ctx context.Context, obs Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if err := touchExperiment(ctx, tx, obs.Experiment, now); err != nil {
		return err
	}
	if err := putObservation(ctx, tx, obs, now); err != nil {
		return err
	}

	return tx.Commit()
}

// ImportObservations upserts every observation into experiment in a single
// transaction. Either all rows land or none do.
func (s *SQLiteStore) ImportObservations(ctx context.Context, experiment string, obs []Observation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if err := touchExperiment(ctx, tx, experiment, now); err != nil {
		return 0, err
	}
	for i, o := range obs {
		o.Experiment = experiment
		if err := putObservation(ctx, tx, o, now); err != nil {
			return 0, fmt.Errorf("observation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return len(obs), nil
}

// GetObservations returns the observations of experiment ordered by period,
// then by first recording of each alternative.
func (s *SQLiteStore) GetObservations(ctx context.Context, experiment string) ([]*Observation, error) {
	if _, err := s.GetExperiment(ctx, experiment); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.experiment, o.alternative, o.period, o.exposures, o.conversions, o.value, o.updated_at
		 FROM observations o
		 JOIN (SELECT alternative, MIN(id) AS first_id FROM observations WHERE experiment = ? GROUP BY alternative) f
		     ON f.alternative = o.alternative
		 WHERE o.experiment = ?
		 ORDER BY o.period, f.first_id`,
		experiment, experiment,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get observations: %w", err)
	}
	defer rows.Close()

	var out []*Observation
	for rows.Next() {
		var o Observation
		var updatedAt int64
		if err := rows.Scan(&o.ID, &o.Experiment, &o.Alternative, &o.Period, &o.Exposures, &o.Conversions, &o.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, &o)
	}

	return out, rows.Err()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func touchExperiment(ctx context.Context, db execer, name string, now int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO experiments (name, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET updated_at = excluded.updated_at`,
		name, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}
	return nil
}

func putObservation(ctx context.Context, db execer, o Observation, now int64) error {
	_, err := db.ExecContext(ctx, upsertObservation,
		o.Experiment, o.Alternative, o.Period, o.Exposures, o.Conversions, o.Value, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record observation: %w", err)
	}
	return nil
}
