package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	cfg  Config
	mu   sync.Mutex
	path string
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: is a separate database
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		cfg:  cfg,
		path: cfg.Path,
	}, nil
}

// Open creates, initializes and migrates a store in one step.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if s.path != memoryPath {
		dsn = "file:" + dsn + "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordFailure appends a failure to the journal
func (s *SQLiteStore) RecordFailure(ctx context.Context, record *FailureRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	query := `
		INSERT INTO failures (instance_id, facade, kind, code, message, signature, parameters, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		record.InstanceID,
		record.Facade,
		record.Kind,
		record.Code,
		record.Message,
		record.Signature,
		record.Parameters,
		record.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get failure ID: %w", err)
	}

	record.ID = id
	return nil
}

// RecordLifecycle appends a lifecycle transition to the journal
func (s *SQLiteStore) RecordLifecycle(ctx context.Context, record *LifecycleRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	query := `
		INSERT INTO lifecycle (instance_id, state, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		record.InstanceID,
		record.State,
		record.Message,
		record.Details,
		record.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record lifecycle: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get lifecycle ID: %w", err)
	}

	record.ID = id
	return nil
}

// ListFailures retrieves failures newest first with optional filters and pagination
func (s *SQLiteStore) ListFailures(ctx context.Context, filter FailureFilter) ([]*FailureRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT id, instance_id, facade, kind, code, message, signature, parameters, timestamp
		FROM failures
		WHERE (? IS NULL OR instance_id = ?)
		  AND (? IS NULL OR kind = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.InstanceID, filter.InstanceID,
		filter.Kind, filter.Kind,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer rows.Close()

	records := []*FailureRecord{}
	for rows.Next() {
		rec := &FailureRecord{}
		var ts int64
		err := rows.Scan(
			&rec.ID,
			&rec.InstanceID,
			&rec.Facade,
			&rec.Kind,
			&rec.Code,
			&rec.Message,
			&rec.Signature,
			&rec.Parameters,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failures: %w", err)
	}

	return records, nil
}

// ListLifecycle retrieves lifecycle transitions in the order they happened
func (s *SQLiteStore) ListLifecycle(ctx context.Context, instanceID *string, limit, offset int) ([]*LifecycleRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT id, instance_id, state, message, details, timestamp
		FROM lifecycle
		WHERE (? IS NULL OR instance_id = ?)
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, instanceID, instanceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list lifecycle: %w", err)
	}
	defer rows.Close()

	records := []*LifecycleRecord{}
	for rows.Next() {
		rec := &LifecycleRecord{}
		var ts int64
		err := rows.Scan(
			&rec.ID,
			&rec.InstanceID,
			&rec.State,
			&rec.Message,
			&rec.Details,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lifecycle: %w", err)
	}

	return records, nil
}

// CountFailuresByKind returns failure counts grouped by kind
func (s *SQLiteStore) CountFailuresByKind(ctx context.Context, instanceID *string) (map[string]int64, error) {
	query := `
		SELECT kind, COUNT(*)
		FROM failures
		WHERE (? IS NULL OR instance_id = ?)
		GROUP BY kind
	`

	rows, err := s.db.QueryContext(ctx, query, instanceID, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to count failures: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan failure count: %w", err)
		}
		counts[kind] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failure counts: %w", err)
	}

	return counts, nil
}

// PurgeBefore deletes journal rows older than cutoff and returns how many
// rows were removed.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range []string{"failures", "lifecycle"} {
		result, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE timestamp < ?", cutoff.UnixNano())
		if err != nil {
			return 0, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count purged %s: %w", table, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return total, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
