package experiment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registered as "sqlite"
)

// SQLiteStoreConfig configures the durable experiment store.
type SQLiteStoreConfig struct {
	// Path is the database file. Default: data/experiments.db
	Path string

	// BusyTimeout for concurrent access. Default: 5s
	BusyTimeout time.Duration
}

// DefaultSQLiteStoreConfig returns the default store configuration.
func DefaultSQLiteStoreConfig() *SQLiteStoreConfig {
	return &SQLiteStoreConfig{
		Path:        "data/experiments.db",
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteStore implements Store on SQLite via the pure-Go driver, so the
// offline decide command and tests run without cgo. Experiments, variant
// counters, and assignments all survive restarts; outcome increments ride
// single UPDATE statements so concurrent collaborators never lose counts.
type SQLiteStore struct {
	config *SQLiteStoreConfig
	db     *sql.DB
	logger *slog.Logger

	closeOnce sync.Once
}

const experimentSchema = `
CREATE TABLE IF NOT EXISTS experiments (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	closed_at INTEGER NOT NULL DEFAULT 0,
	winner_id TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS variants (
	experiment_id TEXT NOT NULL,
	id TEXT NOT NULL,
	weight REAL NOT NULL,
	control INTEGER NOT NULL DEFAULT 0,
	impressions INTEGER NOT NULL DEFAULT 0,
	conversions INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (experiment_id, id)
);

CREATE TABLE IF NOT EXISTS assignments (
	experiment_id TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	variant_id TEXT NOT NULL,
	assigned_at INTEGER NOT NULL,
	PRIMARY KEY (experiment_id, subject_id)
);
`

// NewSQLiteStore opens (creating if needed) the experiment database.
func NewSQLiteStore(config *SQLiteStoreConfig, logger *slog.Logger) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteStoreConfig()
	}
	if config.Path == "" {
		return nil, fmt.Errorf("experiment store path is required")
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, NewStoreError("sqlite", "open", err)
	}

	// One writer; SQLite serializes writes anyway and this avoids
	// SQLITE_BUSY churn under concurrent assignment and outcome writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(experimentSchema); err != nil {
		db.Close()
		return nil, NewStoreError("sqlite", "create_schema", err)
	}

	return &SQLiteStore{
		config: config,
		db:     db,
		logger: logger.With("component", "experiment-store"),
	}, nil
}

// GetExperiment implements Store.
func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, state, started_at, closed_at, winner_id, updated_at
		 FROM experiments WHERE id = ?`, id)

	exp, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewStoreError("sqlite", "get", err)
	}

	if err := s.loadVariants(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// ListExperiments implements Store.
func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, state, started_at, closed_at, winner_id, updated_at
		 FROM experiments ORDER BY id ASC`)
	if err != nil {
		return nil, NewStoreError("sqlite", "list", err)
	}
	defer rows.Close()

	var out []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, NewStoreError("sqlite", "scan", err)
		}
		out = append(out, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStoreError("sqlite", "list", err)
	}

	for _, exp := range out {
		if err := s.loadVariants(ctx, exp); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PutExperiment implements Store. The experiment row and all variant rows
// are replaced in one transaction so readers never see a half-written
// weight set.
func (s *SQLiteStore) PutExperiment(ctx context.Context, exp *Experiment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStoreError("sqlite", "put", err)
	}
	defer tx.Rollback()

	var closedAt int64
	if !exp.ClosedAt.IsZero() {
		closedAt = exp.ClosedAt.UnixNano()
	}
	updatedAt := exp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiments (id, name, state, started_at, closed_at, winner_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			started_at = excluded.started_at,
			closed_at = excluded.closed_at,
			winner_id = excluded.winner_id,
			updated_at = excluded.updated_at`,
		exp.ID, exp.Name, string(exp.State), exp.StartedAt.UnixNano(),
		closedAt, exp.WinnerID, updatedAt.UnixNano())
	if err != nil {
		return NewStoreError("sqlite", "put", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE experiment_id = ?`, exp.ID); err != nil {
		return NewStoreError("sqlite", "put", err)
	}
	for i := range exp.Variants {
		v := &exp.Variants[i]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO variants (experiment_id, id, weight, control, impressions, conversions)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			exp.ID, v.ID, v.Weight, v.Control, int64(v.Impressions), int64(v.Conversions))
		if err != nil {
			return NewStoreError("sqlite", "put", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("sqlite", "put", err)
	}
	return nil
}

// GetAssignment implements Store.
func (s *SQLiteStore) GetAssignment(ctx context.Context, experimentID, subjectID string) (*Assignment, error) {
	var asg Assignment
	var nanos int64

	err := s.db.QueryRowContext(ctx,
		`SELECT experiment_id, subject_id, variant_id, assigned_at
		 FROM assignments WHERE experiment_id = ? AND subject_id = ?`,
		experimentID, subjectID).
		Scan(&asg.ExperimentID, &asg.SubjectID, &asg.VariantID, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoAssignment
	}
	if err != nil {
		return nil, NewStoreError("sqlite", "get_assignment", err)
	}

	asg.AssignedAt = time.Unix(0, nanos)
	return &asg, nil
}

// PutAssignment implements Store.
func (s *SQLiteStore) PutAssignment(ctx context.Context, asg *Assignment) error {
	assignedAt := asg.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (experiment_id, subject_id, variant_id, assigned_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(experiment_id, subject_id) DO UPDATE SET
			variant_id = excluded.variant_id,
			assigned_at = excluded.assigned_at`,
		asg.ExperimentID, asg.SubjectID, asg.VariantID, assignedAt.UnixNano())
	if err != nil {
		return NewStoreError("sqlite", "put_assignment", err)
	}
	return nil
}

// AddOutcome implements Store.
func (s *SQLiteStore) AddOutcome(ctx context.Context, experimentID, variantID string, impressions, conversions uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE variants SET impressions = impressions + ?, conversions = conversions + ?
		 WHERE experiment_id = ? AND id = ?`,
		int64(impressions), int64(conversions), experimentID, variantID)
	if err != nil {
		return NewStoreError("sqlite", "add_outcome", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return NewStoreError("sqlite", "add_outcome", err)
	}
	if n == 0 {
		// Distinguish a missing experiment from a missing variant.
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM experiments WHERE id = ?`, experimentID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return NewStoreError("sqlite", "add_outcome", err)
		}
		return ErrVariantNotFound
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE experiments SET updated_at = ? WHERE id = ?`,
		time.Now().UnixNano(), experimentID)
	if err != nil {
		return NewStoreError("sqlite", "add_outcome", err)
	}
	return nil
}

// Ping reports whether the database is reachable. Used by readiness probes.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store. Safe to call twice.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

// loadVariants fills the experiment's variants in stable ID order.
func (s *SQLiteStore) loadVariants(ctx context.Context, exp *Experiment) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, weight, control, impressions, conversions
		 FROM variants WHERE experiment_id = ? ORDER BY id ASC`, exp.ID)
	if err != nil {
		return NewStoreError("sqlite", "load_variants", err)
	}
	defer rows.Close()

	exp.Variants = exp.Variants[:0]
	for rows.Next() {
		var v Variant
		var impressions, conversions int64
		if err := rows.Scan(&v.ID, &v.Weight, &v.Control, &impressions, &conversions); err != nil {
			return NewStoreError("sqlite", "scan_variant", err)
		}
		v.Impressions = uint64(impressions)
		v.Conversions = uint64(conversions)
		exp.Variants = append(exp.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return NewStoreError("sqlite", "load_variants", err)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanExperiment.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var state string
	var startedAt, closedAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.Name, &state, &startedAt, &closedAt, &exp.WinnerID, &updatedAt)
	if err != nil {
		return nil, err
	}

	exp.State = State(state)
	exp.StartedAt = time.Unix(0, startedAt)
	if closedAt > 0 {
		exp.ClosedAt = time.Unix(0, closedAt)
	}
	exp.UpdatedAt = time.Unix(0, updatedAt)
	return &exp, nil
}
