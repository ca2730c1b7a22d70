// Package sqlstore implements portfolio.Store on SQLite.
//
// The ledger tables are append-only (triggers reject updates and deletes).
// Every append bumps the portfolio version with a compare-and-set update,
// which is also what serializes concurrent writers of the same portfolio.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Config holds database configuration
type Config struct {
	Path   string // file path, or a file: URI for in-memory databases
	Logger zerolog.Logger
}

// Store is a portfolio.Store backed by a SQLite database.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open opens (creating it if needed) the database at cfg.Path and applies
// the schema.
func Open(cfg Config) (*Store, error) {
	inMemory := strings.HasPrefix(cfg.Path, "file:")
	if !inMemory {
		// Ensure directory exists - resolve to absolute path to avoid relative path issues
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Path, err)
	}
	configureConnectionPool(conn, inMemory)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Path, err)
	}

	s := &Store{
		db:   conn,
		path: cfg.Path,
		log:  cfg.Logger.With().Str("component", "sqlstore").Logger(),
	}
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	s.log.Debug().Str("path", cfg.Path).Msg("database opened")
	return s, nil
}

// buildConnectionString creates SQLite connection string with the ledger PRAGMAs
func buildConnectionString(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	connStr := path + sep + "_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(FULL)"  // Fsync after every write
	connStr += "&_pragma=foreign_keys(1)"    // Enable foreign key constraints
	connStr += "&_pragma=busy_timeout(5000)" // Wait for concurrent writers
	connStr += "&_pragma=cache_size(-16000)" // 16MB cache (negative = KB)
	return connStr
}

// configureConnectionPool sets up connection pool for long-term operation
func configureConnectionPool(conn *sql.DB, inMemory bool) {
	if inMemory {
		// A shared in-memory database locks tables, not the file: one
		// connection avoids SQLITE_LOCKED between readers and writers.
		conn.SetMaxOpenConns(1)
		return
	}
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// inTx runs fn in a transaction, committed when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
