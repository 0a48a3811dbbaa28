package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlDBCreateExists = 1007
	mysqlAccessDenied   = 1045
)

// MySQL is the MySQL adapter.
type MySQL struct {
	cfg DatabaseConfig
	dsn *mysql.Config
}

func newMySQL(cfg DatabaseConfig) (*MySQL, error) {
	var dsn *mysql.Config
	if cfg.URL != "" {
		var err error
		dsn, err = mysql.ParseDSN(strings.TrimPrefix(cfg.URL, "mysql://"))
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
	} else {
		dsn = mysql.NewConfig()
		dsn.User = cfg.Username
		dsn.Passwd = cfg.Password
		dsn.Net = "tcp"
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		dsn.Addr = net.JoinHostPort(firstNonEmpty(cfg.Host, "127.0.0.1"), strconv.Itoa(port))
		dsn.DBName = cfg.Database
	}
	dsn.MultiStatements = true
	dsn.ParseTime = true
	return &MySQL{cfg: cfg, dsn: dsn}, nil
}

func (m *MySQL) Name() string         { return "mysql" }
func (m *MySQL) Dialect() Dialect     { return mysqlDialect{} }
func (m *MySQL) DatabaseName() string { return m.dsn.DBName }

func (m *MySQL) IsLocal() bool {
	host, _, err := net.SplitHostPort(m.dsn.Addr)
	if err != nil {
		host = m.dsn.Addr
	}
	return m.dsn.Net == "unix" || isLocalHost(host)
}

func (m *MySQL) open(ctx context.Context, dsn *mysql.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Open connects to the configured database.
func (m *MySQL) Open(ctx context.Context) (*sql.DB, error) {
	return m.open(ctx, m.dsn)
}

// charsetAndCollation falls back to utf8 / utf8_unicode_ci.
func (m *MySQL) charsetAndCollation() (string, string) {
	return firstNonEmpty(m.cfg.Charset, m.cfg.Encoding, "utf8"), firstNonEmpty(m.cfg.Collation, "utf8_unicode_ci")
}

// Create creates the database with the configured charset and collation.
func (m *MySQL) Create(ctx context.Context) error {
	server := m.dsn.Clone()
	server.DBName = ""
	db, err := m.open(ctx, server)
	if err != nil {
		return m.explain(err)
	}
	defer db.Close()
	charset, collation := m.charsetAndCollation()
	q := fmt.Sprintf("CREATE DATABASE %s DEFAULT CHARACTER SET %s COLLATE %s", quoteMySQL(m.dsn.DBName), charset, collation)
	if _, err := db.ExecContext(ctx, q); err != nil {
		return m.explain(err)
	}
	return nil
}

// explain turns driver errors into the messages users act on.
func (m *MySQL) explain(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDBCreateExists:
			return fmt.Errorf("%s: %w", m.dsn.DBName, ErrDatabaseExists)
		case mysqlAccessDenied:
			return fmt.Errorf("%s. Please provide the root credentials for your mysql installation: %w", myErr.Message, err)
		}
	}
	charset, collation := m.charsetAndCollation()
	return fmt.Errorf("couldn't create database %s, charset: %s, collation: %s: %w", m.dsn.DBName, charset, collation, err)
}

// Drop drops the database.
func (m *MySQL) Drop(ctx context.Context) error {
	db, err := m.Open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoteMySQL(m.dsn.DBName))
	return err
}

func (m *MySQL) Charset(ctx context.Context) (string, error) {
	return m.variable(ctx, "SELECT @@character_set_database")
}

func (m *MySQL) Collation(ctx context.Context) (string, error) {
	return m.variable(ctx, "SELECT @@collation_database")
}

func (m *MySQL) variable(ctx context.Context, q string) (string, error) {
	db, err := m.Open(ctx)
	if err != nil {
		return "", err
	}
	defer db.Close()
	return queryString(ctx, db, q)
}

// DumpStructure writes SHOW CREATE TABLE for every base table.
func (m *MySQL) DumpStructure(ctx context.Context, w io.Writer) error {
	db, err := m.Open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, "SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'")
	if err != nil {
		return err
	}
	var tables []string
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	stmts := make([]string, 0, len(tables))
	for _, t := range tables {
		var name, ddl string
		if err := db.QueryRowContext(ctx, "SHOW CREATE TABLE "+quoteMySQL(t)).Scan(&name, &ddl); err != nil {
			return err
		}
		stmts = append(stmts, ddl)
	}
	return writeStatements(w, stmts)
}

func quoteMySQL(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

type mysqlDialect struct{}

func (mysqlDialect) QuoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = quoteMySQL(p)
	}
	return strings.Join(parts, ".")
}

func (mysqlDialect) QuoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) ColumnsQuery(table string) (string, []any) {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return `SELECT column_name FROM information_schema.columns WHERE table_schema = ? AND table_name = ?`, []any{schema, name}
	}
	return `SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?`, []any{table}
}

func (mysqlDialect) SetupSQL(string) []string { return nil }

func (mysqlDialect) VersionType() string   { return "BIGINT" }
func (mysqlDialect) TimestampType() string { return "DATETIME" }
