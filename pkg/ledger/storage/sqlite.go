package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"signalhouse/overture/pkg/ledger"
)

// SQLiteConfig contains configuration for the SQLite ledger backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// BusyTimeout is how long a locked database is retried.
	// Default: 5s
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/ledger.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements ledger.Storage on SQLite. WAL keeps concurrent
// readers off the append path; synchronous=FULL makes each append durable
// before it returns, which is the ledger's core guarantee. Sequence numbers
// ride AUTOINCREMENT so they are strictly increasing and never reused, and
// a partial unique index on decision action IDs backstops the pipeline's
// idempotency even across processes.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	action_id TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	action_kind TEXT NOT NULL,
	campaign_id TEXT NOT NULL DEFAULT '',
	experiment_id TEXT NOT NULL DEFAULT '',
	variant_id TEXT NOT NULL DEFAULT '',
	verdict TEXT NOT NULL,
	results TEXT NOT NULL DEFAULT '[]',
	outcome TEXT NOT NULL,
	human_override INTEGER NOT NULL DEFAULT 0,
	override_reason TEXT NOT NULL DEFAULT '',
	corrects_seq INTEGER NOT NULL DEFAULT 0,
	policy_version TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_decision_action
	ON audit_records(action_id) WHERE kind = 'decision';

CREATE INDEX IF NOT EXISTS idx_audit_subject
	ON audit_records(subject_id, created_at);

CREATE INDEX IF NOT EXISTS idx_audit_created
	ON audit_records(created_at);

CREATE INDEX IF NOT EXISTS idx_audit_experiment
	ON audit_records(experiment_id) WHERE experiment_id != '';

CREATE INDEX IF NOT EXISTS idx_audit_corrects
	ON audit_records(corrects_seq) WHERE corrects_seq > 0;
`

// NewSQLiteStorage opens (creating if needed) the ledger database.
func NewSQLiteStorage(config *SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger.With("component", "ledger-storage"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("ledger storage opened",
		"path", config.Path,
		"max_open_conns", config.MaxOpenConns,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return ledger.NewStorageError("sqlite", "enable_wal", err)
	}
	// Appends must survive a crash the instant they return.
	if _, err := s.db.Exec("PRAGMA synchronous=FULL;"); err != nil {
		return ledger.NewStorageError("sqlite", "set_synchronous", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return ledger.NewStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return ledger.NewStorageError("sqlite", "create_schema", err)
	}
	return nil
}

// Append implements ledger.Storage.
func (s *SQLiteStorage) Append(ctx context.Context, record *ledger.Record) (uint64, error) {
	prepared, err := prepareRecord(record)
	if err != nil {
		return 0, ledger.NewStorageError("sqlite", "append", err)
	}

	results, err := json.Marshal(prepared.Results)
	if err != nil {
		return 0, ledger.NewStorageError("sqlite", "append", err)
	}

	const insert = `
		INSERT INTO audit_records (
			id, kind, action_id, subject_id, channel, action_kind,
			campaign_id, experiment_id, variant_id,
			verdict, results, outcome,
			human_override, override_reason, corrects_seq,
			policy_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, insert,
		prepared.ID, string(prepared.Kind), prepared.ActionID, prepared.SubjectID,
		prepared.Channel, prepared.ActionKind,
		prepared.CampaignID, prepared.ExperimentID, prepared.VariantID,
		prepared.Verdict, string(results), prepared.Outcome,
		prepared.HumanOverride, prepared.OverrideReason, prepared.CorrectsSeq,
		prepared.PolicyVersion, prepared.CreatedAt,
	)
	if err != nil {
		if isUniqueActionViolation(err) {
			return 0, ledger.ErrDuplicateAction
		}
		return 0, ledger.NewStorageError("sqlite", "append", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, ledger.NewStorageError("sqlite", "append", err)
	}

	record.ID = prepared.ID
	record.CreatedAt = prepared.CreatedAt
	record.Seq = uint64(seq)
	return record.Seq, nil
}

// isUniqueActionViolation reports whether err is the partial unique index
// on decision action IDs firing.
func isUniqueActionViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return strings.Contains(serr.Error(), "action_id")
	}
	return false
}

// Read implements ledger.Storage.
func (s *SQLiteStorage) Read(ctx context.Context, query *ledger.Query) ([]*ledger.Record, error) {
	if query == nil {
		query = &ledger.Query{}
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhereClause(query)
	sqlQuery := selectColumns + " FROM audit_records"
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	sqlQuery += fmt.Sprintf(" ORDER BY seq ASC LIMIT %d", query.EffectiveLimit())
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "read", err)
	}
	defer rows.Close()

	records := []*ledger.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, ledger.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.NewStorageError("sqlite", "read", err)
	}
	return records, nil
}

// Count implements ledger.Storage.
func (s *SQLiteStorage) Count(ctx context.Context, query *ledger.Query) (int64, error) {
	if query == nil {
		query = &ledger.Query{}
	}
	if err := query.Validate(); err != nil {
		return 0, err
	}

	where, args := buildWhereClause(query)
	sqlQuery := "SELECT COUNT(*) FROM audit_records"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, ledger.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// GetBySeq implements ledger.Storage.
func (s *SQLiteStorage) GetBySeq(ctx context.Context, seq uint64) (*ledger.Record, error) {
	return s.getOne(ctx, "seq = ?", seq)
}

// GetByActionID implements ledger.Storage.
func (s *SQLiteStorage) GetByActionID(ctx context.Context, actionID string) (*ledger.Record, error) {
	return s.getOne(ctx, "action_id = ? AND kind = 'decision'", actionID)
}

// GetCorrectionFor implements ledger.Storage.
func (s *SQLiteStorage) GetCorrectionFor(ctx context.Context, seq uint64) (*ledger.Record, error) {
	return s.getOne(ctx, "corrects_seq = ? AND kind = 'correction'", seq)
}

func (s *SQLiteStorage) getOne(ctx context.Context, where string, args ...any) (*ledger.Record, error) {
	sqlQuery := selectColumns + " FROM audit_records WHERE " + where + " ORDER BY seq ASC LIMIT 1"

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, ledger.NewStorageError("sqlite", "get", err)
		}
		return nil, ledger.ErrNotFound
	}
	record, err := scanRecord(rows)
	if err != nil {
		return nil, ledger.NewStorageError("sqlite", "scan", err)
	}
	return record, nil
}

// LastSeq returns the highest assigned sequence number, zero when empty.
// Used by health probes and the invariant check on startup.
func (s *SQLiteStorage) LastSeq(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM audit_records").Scan(&seq)
	if err != nil {
		return 0, ledger.NewStorageError("sqlite", "last_seq", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// Ping reports whether the database is reachable. Used by readiness probes.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements ledger.Storage.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return ledger.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("ledger storage closed")
	return nil
}

const selectColumns = `SELECT
	seq, id, kind, action_id, subject_id, channel, action_kind,
	campaign_id, experiment_id, variant_id,
	verdict, results, outcome,
	human_override, override_reason, corrects_seq,
	policy_version, created_at`

// buildWhereClause builds the WHERE clause (without the keyword) and its
// arguments from the query filters.
func buildWhereClause(query *ledger.Query) (string, []any) {
	var conditions []string
	var args []any

	if query.SubjectID != "" {
		conditions = append(conditions, "subject_id = ?")
		args = append(args, query.SubjectID)
	}
	if query.ActionID != "" {
		conditions = append(conditions, "action_id = ?")
		args = append(args, query.ActionID)
	}
	if query.ExperimentID != "" {
		conditions = append(conditions, "experiment_id = ?")
		args = append(args, query.ExperimentID)
	}
	if query.Verdict != "" {
		conditions = append(conditions, "verdict = ?")
		args = append(args, query.Verdict)
	}
	if query.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(query.Kind))
	}
	if query.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *query.Since)
	}
	if query.Until != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *query.Until)
	}

	return strings.Join(conditions, " AND "), args
}

// scanRecord scans one row into a Record.
func scanRecord(rows *sql.Rows) (*ledger.Record, error) {
	var record ledger.Record
	var kind, results string

	err := rows.Scan(
		&record.Seq, &record.ID, &kind, &record.ActionID, &record.SubjectID,
		&record.Channel, &record.ActionKind,
		&record.CampaignID, &record.ExperimentID, &record.VariantID,
		&record.Verdict, &results, &record.Outcome,
		&record.HumanOverride, &record.OverrideReason, &record.CorrectsSeq,
		&record.PolicyVersion, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Kind = ledger.RecordKind(kind)
	if results != "" && results != "[]" {
		if err := json.Unmarshal([]byte(results), &record.Results); err != nil {
			return nil, fmt.Errorf("decoding results for seq %d: %w", record.Seq, err)
		}
	}
	return &record, nil
}
