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

	_ "github.com/marcboeker/go-duckdb/v2"
)

// DuckDB is the DuckDB adapter. Like SQLite the database is a file.
type DuckDB struct {
	path string
}

func newDuckDB(cfg DatabaseConfig) (*DuckDB, error) {
	path := firstNonEmpty(cfg.Database, strings.TrimPrefix(strings.TrimPrefix(cfg.URL, "duckdb:"), "//"))
	if path == "" {
		return nil, errors.New("duckdb adapter needs a database file")
	}
	return &DuckDB{path: path}, nil
}

func (d *DuckDB) Name() string         { return "duckdb" }
func (d *DuckDB) Dialect() Dialect     { return duckDialect{} }
func (d *DuckDB) DatabaseName() string { return d.path }
func (d *DuckDB) IsLocal() bool        { return true }

func (d *DuckDB) Open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("duckdb", d.path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (d *DuckDB) Create(ctx context.Context) error {
	if _, err := os.Stat(d.path); err == nil {
		return fmt.Errorf("%s: %w", d.path, ErrDatabaseExists)
	}
	db, err := d.Open(ctx)
	if err != nil {
		return fmt.Errorf("couldn't create database %s: %w", d.path, err)
	}
	return db.Close()
}

// Drop removes the database file and its write-ahead log.
func (d *DuckDB) Drop(ctx context.Context) error {
	for _, p := range []string{d.path, d.path + ".wal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Charset is fixed: DuckDB stores all strings as UTF-8.
func (d *DuckDB) Charset(ctx context.Context) (string, error) {
	return "UTF-8", nil
}

func (d *DuckDB) Collation(ctx context.Context) (string, error) {
	db, err := d.Open(ctx)
	if err != nil {
		return "", err
	}
	defer db.Close()
	return queryString(ctx, db, "SELECT current_setting('default_collation')")
}

// DumpStructure writes the DDL DuckDB keeps for tables, views and indexes.
func (d *DuckDB) DumpStructure(ctx context.Context, w io.Writer) error {
	db, err := d.Open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	var stmts []string
	for _, q := range []string{
		`SELECT sql FROM duckdb_tables() WHERE NOT internal ORDER BY schema_name, table_name`,
		`SELECT sql FROM duckdb_views() WHERE NOT internal ORDER BY schema_name, view_name`,
		`SELECT sql FROM duckdb_indexes() WHERE sql IS NOT NULL ORDER BY index_name`,
	} {
		found, err := queryStrings(ctx, db, q)
		if err != nil {
			return err
		}
		stmts = append(stmts, found...)
	}
	return writeStatements(w, stmts)
}

type duckDialect struct{ ansiDialect }

func (duckDialect) ColumnsQuery(table string) (string, []any) {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return `SELECT column_name FROM information_schema.columns WHERE table_schema = ? AND table_name = ?`, []any{schema, name}
	}
	return `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?`, []any{table}
}
