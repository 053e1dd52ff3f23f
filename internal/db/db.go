package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrDatabaseClosed is returned when an operation is attempted on a closed database.
var ErrDatabaseClosed = errors.New("database is closed")

// walCheckpointInterval is how often we checkpoint the WAL file
// to prevent unbounded growth during long-running daemon sessions.
const walCheckpointInterval = 5 * time.Minute

// DB is the main database wrapper for the discovery engine.
// It manages the SQLite connection, migrations, and lifecycle.
type DB struct {
	closeErr  error
	db        *sql.DB
	logger    *slog.Logger
	stopCh    chan struct{}
	stoppedCh chan struct{}
	dbPath    string
	closeOnce sync.Once
}

// Options configures database initialization.
type Options struct {
	Logger   *slog.Logger
	Path     string
	ReadOnly bool
}

// DefaultDBPath returns the default database path (~/.featd/discovery.db).
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".featd", "discovery.db"), nil
}

// Open opens the database and runs migrations.
// The caller must call Close() when done.
func Open(ctx context.Context, opts Options) (*DB, error) {
	dbPath := opts.Path
	if dbPath == "" {
		var err error
		dbPath, err = DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	dbDir := filepath.Dir(dbPath)
	if mkdirErr := os.MkdirAll(dbDir, 0o750); mkdirErr != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", mkdirErr)
	}

	sqlDB, err := openAndInit(ctx, dbPath, opts)
	if err != nil {
		return nil, err
	}

	d := &DB{
		db:        sqlDB,
		logger:    opts.Logger,
		dbPath:    dbPath,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	if !opts.ReadOnly {
		go d.walCheckpointLoop()
	} else {
		close(d.stoppedCh)
	}
	return d, nil
}

// openAndInit opens the SQLite database, configures it, pings it, and
// runs migrations.
func openAndInit(ctx context.Context, dbPath string, opts Options) (*sql.DB, error) {
	// modernc.org/sqlite uses _pragma=name(value) syntax
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	if opts.ReadOnly {
		dsn += "&mode=ro"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles concurrency better with a single writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if !opts.ReadOnly {
		if err := RunMigrations(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return sqlDB, nil
}

// Close closes the database connection.
// It is safe to call Close multiple times.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		if d.stopCh != nil {
			close(d.stopCh)
			<-d.stoppedCh
		}

		if d.db != nil {
			// Final checkpoint before closing to merge WAL into main db
			_, _ = d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			d.closeErr = d.db.Close()
		}
	})
	return d.closeErr
}

// DB returns the underlying sql.DB for direct access.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Path returns the path to the database file.
func (d *DB) Path() string {
	return d.dbPath
}

// Validate checks that the schema is correctly initialized.
func (d *DB) Validate(ctx context.Context) error {
	return ValidateSchema(ctx, d.db)
}

// Version returns the current schema version.
func (d *DB) Version(ctx context.Context) (int, error) {
	return GetSchemaVersion(ctx, d.db)
}

// walCheckpointLoop periodically checkpoints the WAL file to prevent
// unbounded growth during long-running daemon sessions.
func (d *DB) walCheckpointLoop() {
	defer close(d.stoppedCh)

	ticker := time.NewTicker(walCheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			if _, err := d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
				d.logger.Warn("WAL checkpoint failed", "error", err)
			}
		}
	}
}
