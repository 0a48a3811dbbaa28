package dbgen

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestConvertLineEnding checks each newline style against LF input.
func TestConvertLineEnding(t *testing.T) {
	content := "line one\nline two\nlinethree\nlinefour"
	tests := map[string]string{
		"LF":   "line one\nline two\nlinethree\nlinefour",
		"CR":   "line one\rline two\rlinethree\rlinefour",
		"CRLF": "line one\r\nline two\r\nlinethree\r\nlinefour",
	}
	for style, expected := range tests {
		got, err := convertLineEnding(content, style)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", style, err)
		}
		if got != expected {
			t.Errorf("%s: expected %q, got %q", style, expected, got)
		}
	}
}

// TestConvertLineEnding_Invalid verifies that an invalid newline type returns an error.
func TestConvertLineEnding_Invalid(t *testing.T) {
	_, err := convertLineEnding("line one\nline two", "INVALID")
	if err == nil {
		t.Errorf("Expected an error for invalid newline type, got nil")
	}
}

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// TestDirMigrations verifies that migrations are parsed, filtered and sorted.
func TestDirMigrations(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"010_add_email_to_users.sql": "-- migrate:up\nSELECT 10;\n",
		"002_create_users.sql":       "-- migrate:up\nSELECT 2;\n",
		"notes.sql":                  "not a migration",
		"003_create_posts.rb":        "class CreatePosts; end",
	})
	migs, err := Dir{Path: dir, Ext: ".sql"}.Migrations()
	if err != nil {
		t.Fatalf("Migrations failed: %v", err)
	}
	if len(migs) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migs))
	}
	if migs[0].Version != 2 || migs[0].Name != "create_users" {
		t.Errorf("unexpected first migration: %+v", migs[0])
	}
	if migs[1].Version != 10 || migs[1].Name != "add_email_to_users" {
		t.Errorf("unexpected second migration: %+v", migs[1])
	}
	if migs[0].Md5 == "" || migs[0].Md5 == migs[1].Md5 {
		t.Errorf("expected distinct checksums, got %q and %q", migs[0].Md5, migs[1].Md5)
	}
}

// TestDirMigrationsDuplicateVersion verifies two files cannot share a version.
func TestDirMigrationsDuplicateVersion(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_create_users.sql": "",
		"1_create_people.sql":  "",
	})
	_, err := Dir{Path: dir, Ext: ".sql"}.Migrations()
	if !errors.Is(err, ErrDuplicateVersion) {
		t.Errorf("expected ErrDuplicateVersion, got %v", err)
	}
}

// TestDirMigrationsMissingDir verifies a missing directory has no migrations.
func TestDirMigrationsMissingDir(t *testing.T) {
	migs, err := Dir{Path: filepath.Join(t.TempDir(), "nope"), Ext: ".sql"}.Migrations()
	if err != nil || len(migs) != 0 {
		t.Errorf("expected no migrations and no error, got %v, %v", migs, err)
	}
}

// TestChecksumNewlineInsensitive verifies the same content checksums equally
// whatever line endings it was saved with.
func TestChecksumNewlineInsensitive(t *testing.T) {
	lf := writeMigrations(t, map[string]string{"001_a.sql": "-- migrate:up\nSELECT 1;\n"})
	crlf := writeMigrations(t, map[string]string{"001_a.sql": "-- migrate:up\r\nSELECT 1;\r\n"})

	a, err := Dir{Path: lf, Ext: ".sql", Newline: "LF"}.Migrations()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Dir{Path: crlf, Ext: ".sql", Newline: "LF"}.Migrations()
	if err != nil {
		t.Fatal(err)
	}
	if a[0].Md5 != b[0].Md5 {
		t.Errorf("expected equal checksums, got %s and %s", a[0].Md5, b[0].Md5)
	}
}

// TestMigrationSections verifies the up and down sections are split apart.
func TestMigrationSections(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_create_users.sql": "-- CreateUsers (version 1)\n-- migrate:up\n  CREATE TABLE users (id INT);\n-- migrate:down\n  DROP TABLE users;\n",
		"002_empty.sql":        "-- nothing here\n",
	})
	migs, err := Dir{Path: dir, Ext: ".sql"}.Migrations()
	if err != nil {
		t.Fatal(err)
	}
	up, err := migs[0].Up()
	if err != nil || up != "CREATE TABLE users (id INT);" {
		t.Errorf("unexpected up section %q (%v)", up, err)
	}
	down, err := migs[0].Down()
	if err != nil || down != "DROP TABLE users;" {
		t.Errorf("unexpected down section %q (%v)", down, err)
	}
	if _, err := migs[1].Up(); !errors.Is(err, ErrNotRunnable) {
		t.Errorf("expected ErrNotRunnable, got %v", err)
	}
}
