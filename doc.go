// SPDX-License-Identifier: MIT

// Package dbgen generates numbered migration files and tracks which of
// them a database has applied.
//
// Migrations live in one directory as NNN_name.sql files. The number is a
// zero-padded version, one more than the highest version on disk. Files of
// every flavour count toward that, so a .rb and a .sql migration never share
// a number. SQL files carry both directions:
//
//	-- CreateUsers (version 1)
//	-- migrate:up
//	CREATE TABLE users (...);
//	-- migrate:down
//	DROP TABLE users;
//
// # Install
//
//	go get github.com/bcomnes/dbgen@latest
//
// # Generating
//
//	g := dbgen.NewGenerator(dbgen.DefaultConfig, dbgen.SQL)
//	g.ModelMigration("create_users", "User", []string{"name:string", "age:integer"})
//	g.Migration("AddEmailToUsers", []string{"email:string"})
//
// Migration names of the form Add<Anything>To<Table> and
// Remove<Anything>From<Table> get add-column and remove-column bodies.
// Any other name gets an empty migration. The ActiveRecord component
// writes Ruby migration classes instead of SQL.
//
// # Running
//
// A Ledger records applied versions. The pkg/adapter package provides one
// backed by database/sql for PostgreSQL, MySQL, SQLite and DuckDB.
//
//	ledger := adapter.NewLedger(db, a.Dialect(), cfg.SchemaTable)
//	m := dbgen.NewMigrator(cfg, dir, ledger)
//	m.Migrate(ctx, nil)
//	m.Rollback(ctx, 1)
//	err := m.Tracker().AbortIfPending(ctx)
//
// Tracker reads never create or alter the ledger table.
//
// # Configuration
//
//   - MigrationsDir     directory holding migrations (default "db/migrate")
//   - Component         "sql" or "activerecord"
//   - SchemaTable       ledger table (default "schema_migrations")
//   - SchemaFile        schema dump location (default "db/schema.sql")
//   - Newline           line ending checksums are computed with
//   - ValidateChecksums refuse to migrate when an applied file changed
//
// The cmd/dbgen CLI reads these from config/database.yml along with the
// per-environment database settings.
package dbgen
