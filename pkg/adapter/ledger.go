package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bcomnes/dbgen"
)

// Dialect supplies the SQL differences the ledger cares about.
type Dialect interface {
	// QuoteTable quotes a possibly schema-qualified table name.
	QuoteTable(table string) string

	// QuoteLiteral quotes a string literal.
	QuoteLiteral(s string) string

	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string

	// ColumnsQuery lists the column names of table; no rows means no table.
	ColumnsQuery(table string) (string, []any)

	// SetupSQL returns statements that must run before the table is created.
	SetupSQL(table string) []string

	VersionType() string
	TimestampType() string
}

// Ledger keeps applied migration versions in a table. It satisfies
// dbgen.Ledger and dbgen.ChecksumLedger.
type Ledger struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

var _ dbgen.ChecksumLedger = (*Ledger)(nil)

// NewLedger creates a Ledger storing versions in table.
func NewLedger(db *sql.DB, d Dialect, table string) *Ledger {
	return &Ledger{db: db, dialect: d, table: table}
}

// DB returns the connection the ledger uses.
func (l *Ledger) DB() *sql.DB {
	return l.db
}

func (l *Ledger) quoted() string {
	return l.dialect.QuoteTable(l.table)
}

func (l *Ledger) columns(ctx context.Context) ([]string, error) {
	q, args := l.dialect.ColumnsQuery(l.table)
	return queryStrings(ctx, l.db, q, args...)
}

// HasTable checks for the existence of the ledger table by querying its columns.
func (l *Ledger) HasTable(ctx context.Context) (bool, error) {
	cols, err := l.columns(ctx)
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}

// hasColumn checks for a column name (case insensitive).
func hasColumn(columns []string, name string) bool {
	for _, col := range columns {
		if strings.EqualFold(col, name) {
			return true
		}
	}
	return false
}

// EnsureTable creates the ledger table if it is missing and adds any
// columns an older table lacks.
func (l *Ledger) EnsureTable(ctx context.Context) error {
	columns, err := l.columns(ctx)
	if err != nil {
		return err
	}
	qt := l.quoted()
	var queries []string
	if len(columns) == 0 {
		queries = append(queries, l.dialect.SetupSQL(l.table)...)
		queries = append(queries, fmt.Sprintf(`CREATE TABLE %s (version %s PRIMARY KEY)`, qt, l.dialect.VersionType()))
	}
	if !hasColumn(columns, "name") {
		queries = append(queries, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN name TEXT`, qt))
	}
	if !hasColumn(columns, "md5") {
		queries = append(queries, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN md5 TEXT`, qt))
	}
	if !hasColumn(columns, "run_at") {
		queries = append(queries, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN run_at %s`, qt, l.dialect.TimestampType()))
	}
	for _, q := range queries {
		if _, err := l.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure ledger table %s: %w", l.table, err)
		}
	}
	return nil
}

// AppliedVersions returns applied versions in ascending order. A missing
// table means nothing has been applied; it is not created here.
func (l *Ledger) AppliedVersions(ctx context.Context) ([]int, error) {
	ok, err := l.HasTable(ctx)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`SELECT version FROM %s ORDER BY version`, l.quoted()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Checksums returns the recorded MD5 of every applied version.
func (l *Ledger) Checksums(ctx context.Context) (map[int]string, error) {
	sums := make(map[int]string)
	ok, err := l.HasTable(ctx)
	if err != nil || !ok {
		return sums, err
	}
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`SELECT version, md5 FROM %s`, l.quoted()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var v int
		var md5 sql.NullString
		if err := rows.Scan(&v, &md5); err != nil {
			return nil, err
		}
		sums[v] = md5.String
	}
	return sums, rows.Err()
}

// Apply runs script and records the migration in one transaction.
func (l *Ledger) Apply(ctx context.Context, rec dbgen.Record, script string) error {
	if err := l.EnsureTable(ctx); err != nil {
		return err
	}
	d := l.dialect
	insert := fmt.Sprintf(`INSERT INTO %s (version, name, md5, run_at) VALUES (%s, %s, %s, %s)`,
		l.quoted(), d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4))
	return l.inTx(ctx, script, insert, rec.Version, rec.Name, rec.Md5, time.Now().UTC())
}

// Revert runs script and deletes the version in one transaction.
func (l *Ledger) Revert(ctx context.Context, version int, script string) error {
	if err := l.EnsureTable(ctx); err != nil {
		return err
	}
	del := fmt.Sprintf(`DELETE FROM %s WHERE version = %s`, l.quoted(), l.dialect.Placeholder(1))
	return l.inTx(ctx, script, del, version)
}

func (l *Ledger) inTx(ctx context.Context, script, bookkeeping string, args ...any) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if strings.TrimSpace(script) != "" {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			tx.Rollback()
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DropTable drops the ledger table.
func (l *Ledger) DropTable(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, l.quoted()))
	return err
}

// SchemaInformation renders the ledger contents as INSERT statements so a
// loaded dump knows which migrations it already contains.
func (l *Ledger) SchemaInformation(ctx context.Context) (string, error) {
	ok, err := l.HasTable(ctx)
	if err != nil || !ok {
		return "", err
	}
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`SELECT version, name, md5 FROM %s ORDER BY version`, l.quoted()))
	if err != nil {
		return "", err
	}
	defer rows.Close()
	d := l.dialect
	var b strings.Builder
	for rows.Next() {
		var v int
		var name, md5 sql.NullString
		if err := rows.Scan(&v, &name, &md5); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "INSERT INTO %s (version, name, md5) VALUES (%d, %s, %s);\n",
			l.quoted(), v, d.QuoteLiteral(name.String), d.QuoteLiteral(md5.String))
	}
	return b.String(), rows.Err()
}

// ansiDialect covers the quoting shared by sqlite and duckdb.
type ansiDialect struct{}

func (ansiDialect) QuoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

func (ansiDialect) QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (ansiDialect) Placeholder(int) string { return "?" }

func (ansiDialect) ColumnsQuery(table string) (string, []any) {
	return `SELECT column_name FROM information_schema.columns WHERE table_name = ?`, []any{table}
}

func (ansiDialect) SetupSQL(string) []string { return nil }

func (ansiDialect) VersionType() string { return "BIGINT" }

func (ansiDialect) TimestampType() string { return "TIMESTAMP" }
