package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// duplicate_database
const pgDuplicateDatabase = "42P04"

// Postgres is the PostgreSQL adapter.
type Postgres struct {
	cfg     DatabaseConfig
	connStr string
	conn    *pgx.ConnConfig
}

func newPostgres(cfg DatabaseConfig) (*Postgres, error) {
	connStr := cfg.URL
	if connStr == "" {
		connStr = buildPostgresURL(cfg)
	}
	conn, err := pgx.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres connection: %w", err)
	}
	return &Postgres{cfg: cfg, connStr: connStr, conn: conn}, nil
}

// buildPostgresURL builds a connection URL from discrete config fields.
func buildPostgresURL(cfg DatabaseConfig) string {
	u := url.URL{Scheme: "postgres", Path: "/" + cfg.Database}
	host := firstNonEmpty(cfg.Host, "localhost")
	if cfg.Port != 0 {
		host += ":" + strconv.Itoa(cfg.Port)
	}
	u.Host = host
	if cfg.Username != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	if cfg.SchemaSearchPath != "" {
		q.Set("search_path", cfg.SchemaSearchPath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Postgres) Name() string         { return "postgresql" }
func (p *Postgres) Dialect() Dialect     { return postgresDialect{} }
func (p *Postgres) DatabaseName() string { return p.conn.Database }
func (p *Postgres) IsLocal() bool        { return isLocalHost(p.conn.Host) }

// Open connects to the configured database.
func (p *Postgres) Open(ctx context.Context) (*sql.DB, error) {
	db := stdlib.OpenDB(*p.conn.Copy())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// maintenance connects to the "postgres" database for CREATE/DROP DATABASE.
func (p *Postgres) maintenance(ctx context.Context) (*sql.DB, error) {
	cc := p.conn.Copy()
	cc.Database = "postgres"
	delete(cc.RuntimeParams, "search_path")
	db := stdlib.OpenDB(*cc)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Create creates the database with the configured encoding (default utf8).
func (p *Postgres) Create(ctx context.Context) error {
	db, err := p.maintenance(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	encoding := firstNonEmpty(p.cfg.Encoding, p.cfg.Charset, "utf8")
	q := fmt.Sprintf("CREATE DATABASE %s ENCODING %s", pq.QuoteIdentifier(p.conn.Database), pq.QuoteLiteral(encoding))
	if _, err := db.ExecContext(ctx, q); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase {
			return fmt.Errorf("%s: %w", p.conn.Database, ErrDatabaseExists)
		}
		return fmt.Errorf("couldn't create database %s: %w", p.conn.Database, err)
	}
	return nil
}

// Drop drops the database.
func (p *Postgres) Drop(ctx context.Context) error {
	db, err := p.maintenance(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(p.conn.Database))
	return err
}

// Charset returns the server-side encoding of the database.
func (p *Postgres) Charset(ctx context.Context) (string, error) {
	db, err := p.Open(ctx)
	if err != nil {
		return "", err
	}
	defer db.Close()
	return queryString(ctx, db, `SELECT pg_encoding_to_char(encoding) FROM pg_database WHERE datname = current_database()`)
}

func (p *Postgres) Collation(ctx context.Context) (string, error) {
	return "", ErrUnsupported
}

// DumpStructure runs pg_dump for the schema only, without privileges or owners.
func (p *Postgres) DumpStructure(ctx context.Context, w io.Writer) error {
	var env []string
	if p.conn.Host != "" {
		env = append(env, "PGHOST="+p.conn.Host)
	}
	if p.conn.Port != 0 {
		env = append(env, "PGPORT="+strconv.Itoa(int(p.conn.Port)))
	}
	if p.conn.Password != "" {
		env = append(env, "PGPASSWORD="+p.conn.Password)
	}
	args := []string{"-s", "-x", "-O"}
	if p.conn.User != "" {
		args = append(args, "-U", p.conn.User)
	}
	for _, schema := range strings.Split(p.cfg.SchemaSearchPath, ",") {
		if schema = strings.TrimSpace(schema); schema != "" {
			args = append(args, "--schema="+schema)
		}
	}
	args = append(args, p.conn.Database)
	return runTool(ctx, w, env, "pg_dump", args...)
}

type postgresDialect struct{}

// splitTable separates the schema from a table name. Unqualified names
// live in public.
func splitTable(table string) (schema, name string) {
	if s, t, ok := strings.Cut(table, "."); ok {
		return s, t
	}
	return "public", table
}

// QuoteTable returns the schema-qualified table name with each part quoted.
// pg_dump output clears search_path, so the schema is always spelled out.
func (postgresDialect) QuoteTable(table string) string {
	schema, name := splitTable(table)
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
}

func (postgresDialect) QuoteLiteral(s string) string { return pq.QuoteLiteral(s) }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) ColumnsQuery(table string) (string, []any) {
	schema, name := splitTable(table)
	return `SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2`, []any{schema, name}
}

// SetupSQL creates the schema of a schema-qualified table.
func (postgresDialect) SetupSQL(table string) []string {
	if schema, _, ok := strings.Cut(table, "."); ok {
		return []string{"CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(schema)}
	}
	return nil
}

func (postgresDialect) VersionType() string   { return "BIGINT" }
func (postgresDialect) TimestampType() string { return "TIMESTAMP" }
