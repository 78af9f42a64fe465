package frequency

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registered as "sqlite"
)

// SQLiteStoreConfig configures the durable send journal.
type SQLiteStoreConfig struct {
	// Path is the database file. Default: data/frequency.db
	Path string

	// BusyTimeout for concurrent access. Default: 5s
	BusyTimeout time.Duration

	// CheckpointInterval between WAL checkpoints and prunes. Default: 5m
	CheckpointInterval time.Duration

	// Retention is how long events are kept before pruning. Default: 35 days
	Retention time.Duration
}

// DefaultSQLiteStoreConfig returns the default journal configuration.
func DefaultSQLiteStoreConfig() *SQLiteStoreConfig {
	return &SQLiteStoreConfig{
		Path:               "data/frequency.db",
		BusyTimeout:        5 * time.Second,
		CheckpointInterval: 5 * time.Minute,
		Retention:          DefaultRetention,
	}
}

// SQLiteStore journals send events in SQLite via the pure-Go driver.
// A single write connection plus WAL keeps writers from tripping over
// each other; a background loop checkpoints the WAL and prunes events
// past retention.
type SQLiteStore struct {
	config *SQLiteStoreConfig
	db     *sql.DB
	logger *slog.Logger

	saveStmt  *sql.Stmt
	loadStmt  *sql.Stmt
	pruneStmt *sql.Stmt

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

const frequencySchema = `
CREATE TABLE IF NOT EXISTS send_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	sent_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_send_events_sent_at
	ON send_events(sent_at);

CREATE INDEX IF NOT EXISTS idx_send_events_key
	ON send_events(subject_id, channel, sent_at);
`

// NewSQLiteStore opens (creating if needed) the journal database.
func NewSQLiteStore(config *SQLiteStoreConfig, logger *slog.Logger) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteStoreConfig()
	}
	if config.Path == "" {
		return nil, fmt.Errorf("frequency store path is required")
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}
	if config.CheckpointInterval <= 0 {
		config.CheckpointInterval = 5 * time.Minute
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening frequency store: %w", err)
	}

	// One writer; SQLite serializes writes anyway and this avoids
	// SQLITE_BUSY churn under concurrent decisions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(frequencySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing frequency schema: %w", err)
	}

	s := &SQLiteStore{
		config: config,
		db:     db,
		logger: logger.With("component", "frequency-store"),
		stopCh: make(chan struct{}),
	}

	if err := s.prepare(); err != nil {
		db.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.maintenanceLoop()

	return s, nil
}

func (s *SQLiteStore) prepare() error {
	var err error

	s.saveStmt, err = s.db.Prepare(
		`INSERT INTO send_events (subject_id, channel, sent_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(
		`SELECT subject_id, channel, sent_at FROM send_events WHERE sent_at >= ? ORDER BY sent_at ASC`)
	if err != nil {
		return fmt.Errorf("preparing load statement: %w", err)
	}

	s.pruneStmt, err = s.db.Prepare(
		`DELETE FROM send_events WHERE sent_at < ?`)
	if err != nil {
		return fmt.Errorf("preparing prune statement: %w", err)
	}

	return nil
}

// SaveEvent implements Store.
func (s *SQLiteStore) SaveEvent(ctx context.Context, subjectID, channel string, at time.Time) error {
	_, err := s.saveStmt.ExecContext(ctx, subjectID, channel, at.UnixNano())
	if err != nil {
		return fmt.Errorf("journaling send event: %w", err)
	}
	return nil
}

// LoadSince implements Store.
func (s *SQLiteStore) LoadSince(ctx context.Context, since time.Time) ([]Event, error) {
	rows, err := s.loadStmt.QueryContext(ctx, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("loading send events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var nanos int64
		if err := rows.Scan(&e.SubjectID, &e.Channel, &nanos); err != nil {
			return nil, fmt.Errorf("scanning send event: %w", err)
		}
		e.At = time.Unix(0, nanos)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating send events: %w", err)
	}
	return events, nil
}

// Prune implements Store.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) error {
	res, err := s.pruneStmt.ExecContext(ctx, before.UnixNano())
	if err != nil {
		return fmt.Errorf("pruning send events: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("pruned send events", "removed", n)
	}
	return nil
}

// maintenanceLoop checkpoints the WAL and prunes expired events until Close.
func (s *SQLiteStore) maintenanceLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.db.Exec(`PRAGMA wal_checkpoint(PASSIVE)`); err != nil {
				s.logger.Warn("wal checkpoint failed", "error", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.Prune(ctx, time.Now().Add(-s.config.Retention)); err != nil {
				s.logger.Warn("prune failed", "error", err)
			}
			cancel()
		}
	}
}

// Close stops maintenance and closes the database. Safe to call twice.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()

		for _, stmt := range []*sql.Stmt{s.saveStmt, s.loadStmt, s.pruneStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}
