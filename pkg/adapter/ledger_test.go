package adapter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcomnes/dbgen"
)

func openSqlite(t *testing.T) (*Sqlite, *Ledger) {
	t.Helper()
	a, err := newSqlite(DatabaseConfig{Adapter: "sqlite3", Database: filepath.Join(t.TempDir(), "test.sqlite3")})
	require.NoError(t, err)
	db, err := a.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return a, NewLedger(db, a.Dialect(), "schema_migrations")
}

func TestLedgerEmptyDoesNotCreateTable(t *testing.T) {
	ctx := context.Background()
	_, l := openSqlite(t)

	versions, err := l.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)

	ok, err := l.HasTable(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "reading the ledger must not create the table")
}

func TestLedgerApplyAndRevert(t *testing.T) {
	ctx := context.Background()
	_, l := openSqlite(t)

	require.NoError(t, l.Apply(ctx, dbgen.Record{Version: 1, Name: "create_users", Md5: "abc"},
		"CREATE TABLE users (id INTEGER PRIMARY KEY);"))
	require.NoError(t, l.Apply(ctx, dbgen.Record{Version: 2, Name: "add_email_to_users", Md5: "def"},
		"ALTER TABLE users ADD COLUMN email TEXT;"))

	versions, err := l.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	sums, err := l.Checksums(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "abc", 2: "def"}, sums)

	require.NoError(t, l.Revert(ctx, 2, ""))
	versions, err = l.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)
}

func TestLedgerApplyFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	_, l := openSqlite(t)

	err := l.Apply(ctx, dbgen.Record{Version: 1, Name: "broken"}, "CREATE TABLE oops (;")
	require.Error(t, err)

	versions, err := l.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestLedgerEnsureTableUpgradesOldTable(t *testing.T) {
	ctx := context.Background()
	_, l := openSqlite(t)

	_, err := l.DB().ExecContext(ctx, `CREATE TABLE schema_migrations (version BIGINT PRIMARY KEY)`)
	require.NoError(t, err)
	require.NoError(t, l.EnsureTable(ctx))

	cols, err := l.columns(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"version", "name", "md5", "run_at"}, cols)

	// A second call is a no-op.
	require.NoError(t, l.EnsureTable(ctx))
}

func TestLedgerSchemaInformation(t *testing.T) {
	ctx := context.Background()
	_, l := openSqlite(t)

	info, err := l.SchemaInformation(ctx)
	require.NoError(t, err)
	assert.Empty(t, info)

	require.NoError(t, l.Apply(ctx, dbgen.Record{Version: 7, Name: "it's", Md5: "x"}, ""))
	info, err = l.SchemaInformation(ctx)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "schema_migrations" (version, name, md5) VALUES (7, 'it''s', 'x');`+"\n", info)
}

func TestLedgerDropTable(t *testing.T) {
	ctx := context.Background()
	_, l := openSqlite(t)

	require.NoError(t, l.EnsureTable(ctx))
	require.NoError(t, l.DropTable(ctx))
	ok, err := l.HasTable(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMigratorAgainstSqlite(t *testing.T) {
	ctx := context.Background()
	_, l := openSqlite(t)

	dir := t.TempDir()
	files := map[string]string{
		"001_create_users.sql":       "-- migrate:up\nCREATE TABLE users (id INTEGER PRIMARY KEY);\n-- migrate:down\nDROP TABLE users;\n",
		"002_add_email_to_users.sql": "-- migrate:up\nALTER TABLE users ADD COLUMN email TEXT;\n-- migrate:down\nALTER TABLE users DROP COLUMN email;\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	m := dbgen.NewMigrator(dbgen.DefaultConfig, dbgen.Dir{Path: dir, Ext: ".sql"}, l)
	applied, err := m.Migrate(ctx, nil)
	require.NoError(t, err)
	require.Len(t, applied, 2)

	v, ok, err := m.Tracker().CurrentVersion(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	target := 1
	reverted, err := m.Migrate(ctx, &target)
	require.NoError(t, err)
	require.Len(t, reverted, 1)
	assert.Equal(t, 2, reverted[0].Version)

	pending, err := m.Tracker().PendingMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "add_email_to_users", pending[0].Name)
}

func TestSqliteDumpAndLoadSchema(t *testing.T) {
	ctx := context.Background()
	a, l := openSqlite(t)

	require.NoError(t, l.Apply(ctx, dbgen.Record{Version: 1, Name: "create_posts", Md5: "m"},
		"CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT);"))

	path := filepath.Join(t.TempDir(), "db", "schema.sql")
	require.NoError(t, DumpSchema(ctx, a, l, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	dump := string(data)
	assert.Contains(t, dump, "CREATE TABLE posts")
	assert.Contains(t, dump, `CREATE TABLE "schema_migrations"`)
	assert.True(t, strings.HasSuffix(dump, "VALUES (1, 'create_posts', 'm');\n"), dump)

	fresh, err := newSqlite(DatabaseConfig{Database: filepath.Join(t.TempDir(), "fresh.sqlite3")})
	require.NoError(t, err)
	db, err := fresh.Open(ctx)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, LoadSchema(ctx, db, path))

	versions, err := NewLedger(db, fresh.Dialect(), "schema_migrations").AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)
}

// pg_dump wraps its output in psql-only commands; loading skips them.
func TestLoadSchemaSkipsMetaCommands(t *testing.T) {
	ctx := context.Background()
	_, l := openSqlite(t)
	path := filepath.Join(t.TempDir(), "schema.sql")
	dump := "\\restrict AbC123\n" +
		"CREATE TABLE posts (id INTEGER PRIMARY KEY);\n" +
		"  \\unrestrict AbC123\n" +
		"INSERT INTO posts (id) VALUES (1);\n"
	require.NoError(t, os.WriteFile(path, []byte(dump), 0o644))

	require.NoError(t, LoadSchema(ctx, l.DB(), path))
	var n int
	require.NoError(t, l.DB().QueryRowContext(ctx, "SELECT count(*) FROM posts").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestStripMetaCommands(t *testing.T) {
	in := "SET x = 1;\n\\restrict k\nSELECT 1;\n\\unrestrict k"
	assert.Equal(t, "SET x = 1;\nSELECT 1;\n", stripMetaCommands(in))
}

func TestLoadSchemaMissingFile(t *testing.T) {
	_, l := openSqlite(t)
	err := LoadSchema(context.Background(), l.DB(), filepath.Join(t.TempDir(), "schema.sql"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Run "dbgen migrate"`)
}
