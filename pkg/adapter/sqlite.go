package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Sqlite is the SQLite adapter. The database is a file.
type Sqlite struct {
	path string
}

func newSqlite(cfg DatabaseConfig) (*Sqlite, error) {
	path := cfg.Database
	if path == "" {
		path = strings.TrimPrefix(strings.TrimPrefix(cfg.URL, "sqlite3:"), "sqlite:")
		path = strings.TrimPrefix(path, "//")
	}
	if path == "" {
		return nil, errors.New("sqlite3 adapter needs a database file")
	}
	return &Sqlite{path: path}, nil
}

func (s *Sqlite) Name() string         { return "sqlite3" }
func (s *Sqlite) Dialect() Dialect     { return sqliteDialect{} }
func (s *Sqlite) DatabaseName() string { return s.path }
func (s *Sqlite) IsLocal() bool        { return true }

// Open connects to the database file, creating it if needed.
func (s *Sqlite) Open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Create creates the database file.
func (s *Sqlite) Create(ctx context.Context) error {
	if _, err := os.Stat(s.path); err == nil {
		return fmt.Errorf("%s: %w", s.path, ErrDatabaseExists)
	}
	db, err := s.Open(ctx)
	if err != nil {
		return fmt.Errorf("couldn't create database %s: %w", s.path, err)
	}
	defer db.Close()
	// The file is only written once the connection touches it.
	_, err = db.ExecContext(ctx, "PRAGMA user_version = 0")
	return err
}

// Drop removes the database file. A missing file is not an error.
func (s *Sqlite) Drop(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Sqlite) Charset(ctx context.Context) (string, error) {
	db, err := s.Open(ctx)
	if err != nil {
		return "", err
	}
	defer db.Close()
	return queryString(ctx, db, "PRAGMA encoding")
}

func (s *Sqlite) Collation(ctx context.Context) (string, error) {
	return "", ErrUnsupported
}

// DumpStructure writes the CREATE statements stored in sqlite_master.
func (s *Sqlite) DumpStructure(ctx context.Context, w io.Writer) error {
	db, err := s.Open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	stmts, err := queryStrings(ctx, db, `SELECT sql FROM sqlite_master
		WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%'
		ORDER BY CASE type WHEN 'table' THEN 0 WHEN 'index' THEN 1 ELSE 2 END, name`)
	if err != nil {
		return err
	}
	return writeStatements(w, stmts)
}

type sqliteDialect struct{ ansiDialect }

func (sqliteDialect) ColumnsQuery(table string) (string, []any) {
	return `SELECT name FROM pragma_table_info(?)`, []any{table}
}
