// Package adapter connects dbgen to concrete databases: creating and
// dropping them, dumping their structure, and keeping the migration ledger.
package adapter

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

var (
	// ErrUnsupported is returned for operations an adapter cannot perform.
	ErrUnsupported = errors.New("operation not supported by this adapter")

	// ErrDatabaseExists is returned by Create when the database is already there.
	ErrDatabaseExists = errors.New("database already exists")
)

// DatabaseConfig describes one database, as found under an environment in
// config/database.yml.
type DatabaseConfig struct {
	Adapter          string `json:"adapter" yaml:"adapter"`
	URL              string `json:"url,omitempty" yaml:"url,omitempty"`
	Database         string `json:"database,omitempty" yaml:"database,omitempty"`
	Host             string `json:"host,omitempty" yaml:"host,omitempty"`
	Port             int    `json:"port,omitempty" yaml:"port,omitempty"`
	Username         string `json:"username,omitempty" yaml:"username,omitempty"`
	Password         string `json:"password,omitempty" yaml:"password,omitempty"`
	Encoding         string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Charset          string `json:"charset,omitempty" yaml:"charset,omitempty"`
	Collation        string `json:"collation,omitempty" yaml:"collation,omitempty"`
	SchemaSearchPath string `json:"schemaSearchPath,omitempty" yaml:"schema_search_path,omitempty"`
}

// Adapter is one database backend.
type Adapter interface {
	// Name is the canonical adapter name.
	Name() string

	// Dialect supplies the SQL the ledger needs.
	Dialect() Dialect

	// Open connects to the configured database.
	Open(ctx context.Context) (*sql.DB, error)

	// Create creates the database. It returns ErrDatabaseExists if it is already there.
	Create(ctx context.Context) error

	// Drop removes the database.
	Drop(ctx context.Context) error

	// DumpStructure writes the schema DDL to w.
	DumpStructure(ctx context.Context, w io.Writer) error

	// Charset reports the database character set.
	Charset(ctx context.Context) (string, error)

	// Collation reports the database collation.
	Collation(ctx context.Context) (string, error)

	// IsLocal reports whether the database lives on this machine.
	IsLocal() bool

	// DatabaseName is the database the adapter points at, for messages.
	DatabaseName() string
}

// New returns the adapter named by cfg.Adapter.
func New(cfg DatabaseConfig) (Adapter, error) {
	switch strings.ToLower(cfg.Adapter) {
	case "postgresql", "postgres", "pg":
		return newPostgres(cfg)
	case "mysql", "mysql2":
		return newMySQL(cfg)
	case "sqlite3", "sqlite":
		return newSqlite(cfg)
	case "duckdb":
		return newDuckDB(cfg)
	case "sqlserver":
		return newSQLServer(cfg), nil
	case "firebird":
		return newFirebird(cfg), nil
	default:
		return nil, fmt.Errorf("adapter '%s' not supported. Must be one of: postgresql, mysql, sqlite3, duckdb, sqlserver or firebird", cfg.Adapter)
	}
}

// isLocalHost mirrors the hosts dbgen is willing to create and drop on.
func isLocalHost(host string) bool {
	switch host {
	case "", "127.0.0.1", "localhost", "::1":
		return true
	}
	return strings.HasPrefix(host, "/")
}

// ToolError is a failed external command. Stderr is kept verbatim.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s failed: %v: %s", e.Tool, e.Err, msg)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// runTool runs an external dump tool, streaming its output to stdout.
func runTool(ctx context.Context, stdout io.Writer, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &ToolError{Tool: name, Args: args, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// queryStrings runs query and collects the first column of every row.
func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s.Valid {
			out = append(out, s.String)
		}
	}
	return out, rows.Err()
}

// queryString runs a single-value query.
func queryString(ctx context.Context, db *sql.DB, query string) (string, error) {
	var s string
	if err := db.QueryRowContext(ctx, query).Scan(&s); err != nil {
		return "", err
	}
	return s, nil
}

// writeStatements writes DDL statements separated by blank lines.
func writeStatements(w io.Writer, stmts []string) error {
	for _, s := range stmts {
		s = strings.TrimRight(strings.TrimSpace(s), ";")
		if s == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s;\n\n", s); err != nil {
			return err
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
