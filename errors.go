package dbgen

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidFieldSpec is returned when a field token is not of the form name:type.
	ErrInvalidFieldSpec = errors.New("invalid field spec")

	// ErrAmbiguousMigrationName is returned when a migration name does not follow
	// the Add...To... / Remove...From... convention. It is not fatal: the
	// generator falls back to an empty-body migration.
	ErrAmbiguousMigrationName = errors.New("migration name does not match Add<Fields>To<Table> or Remove<Fields>From<Table>")

	// ErrDuplicateVersion is returned when two migration files share a version.
	ErrDuplicateVersion = errors.New("duplicate migration version")

	// ErrUnknownVersion is returned when no migration file exists for a version.
	ErrUnknownVersion = errors.New("no migration with that version")

	// ErrNotRunnable is returned when a migration file has no SQL sections to run.
	ErrNotRunnable = errors.New("migration is not runnable")
)

// FileSystemError wraps failures reading or writing the migrations directory.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("filesystem error during %s of %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// PendingMigrationsError reports migrations on disk that the ledger has not applied.
type PendingMigrationsError struct {
	Pending []Migration
}

func (e *PendingMigrationsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d pending migrations:\n", len(e.Pending))
	for _, m := range e.Pending {
		fmt.Fprintf(&b, "  %4d %s\n", m.Version, m.Name)
	}
	b.WriteString(`Run "dbgen migrate" to update your database then try again.`)
	return b.String()
}

// ChecksumError is returned when an applied migration file changed on disk.
type ChecksumError struct {
	Version  int
	Recorded string
	Current  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("MD5 checksum failed for migration [%d]: recorded %s, file has %s", e.Version, e.Recorded, e.Current)
}
