package dbgen

import (
	"context"
	"sort"
)

// Record is what the ledger stores for an applied migration.
type Record struct {
	Version int
	Name    string
	Md5     string
}

// Ledger is the database's record of applied migrations.
type Ledger interface {
	// AppliedVersions returns every version the database has applied.
	AppliedVersions(ctx context.Context) ([]int, error)

	// Apply runs script and records rec, together or not at all.
	Apply(ctx context.Context, rec Record, script string) error

	// Revert runs script and forgets version, together or not at all.
	Revert(ctx context.Context, version int, script string) error
}

// ChecksumLedger is a Ledger that also remembers file checksums.
type ChecksumLedger interface {
	Ledger
	Checksums(ctx context.Context) (map[int]string, error)
}

// MigrationStatus pairs a version with whether the ledger has applied it.
// Migrations applied but no longer on disk have an empty Filename.
type MigrationStatus struct {
	Migration
	Applied bool
}

// Tracker compares the migrations on disk with the ledger. It only reads.
type Tracker struct {
	source MigrationSource
	ledger Ledger
}

// NewTracker creates a Tracker.
func NewTracker(source MigrationSource, ledger Ledger) *Tracker {
	return &Tracker{source: source, ledger: ledger}
}

// CurrentVersion returns the highest applied version. ok is false when the
// ledger is empty.
func (t *Tracker) CurrentVersion(ctx context.Context) (version int, ok bool, err error) {
	applied, err := t.ledger.AppliedVersions(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, v := range applied {
		if !ok || v > version {
			version, ok = v, true
		}
	}
	return version, ok, nil
}

// PendingMigrations returns the migrations on disk the ledger has not
// applied, lowest version first.
func (t *Tracker) PendingMigrations(ctx context.Context) ([]Migration, error) {
	migs, applied, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range migs {
		if _, ok := applied[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	sortMigrationsAsc(pending)
	return pending, nil
}

// AbortIfPending returns a *PendingMigrationsError when anything is pending.
func (t *Tracker) AbortIfPending(ctx context.Context) error {
	pending, err := t.PendingMigrations(ctx)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return &PendingMigrationsError{Pending: pending}
	}
	return nil
}

// Status lists every version known to the disk or the ledger, ascending.
func (t *Tracker) Status(ctx context.Context) ([]MigrationStatus, error) {
	migs, applied, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(migs))
	onDisk := make(map[int]struct{}, len(migs))
	for _, m := range migs {
		_, ok := applied[m.Version]
		out = append(out, MigrationStatus{Migration: m, Applied: ok})
		onDisk[m.Version] = struct{}{}
	}
	for v := range applied {
		if _, ok := onDisk[v]; !ok {
			out = append(out, MigrationStatus{Migration: Migration{Version: v}, Applied: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (t *Tracker) load(ctx context.Context) ([]Migration, map[int]struct{}, error) {
	migs, err := t.source.Migrations()
	if err != nil {
		return nil, nil, err
	}
	versions, err := t.ledger.AppliedVersions(ctx)
	if err != nil {
		return nil, nil, err
	}
	applied := make(map[int]struct{}, len(versions))
	for _, v := range versions {
		applied[v] = struct{}{}
	}
	return migs, applied, nil
}
