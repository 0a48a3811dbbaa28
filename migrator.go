package dbgen

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Migrator moves the database between versions.
//
// Every call re-reads the migrations directory and the ledger; nothing is
// cached between calls. The first failure stops the run and is returned
// together with the migrations that completed before it.
type Migrator struct {
	cfg     Config
	source  MigrationSource
	ledger  Ledger
	tracker *Tracker
	logger  *slog.Logger
}

// NewMigrator creates a Migrator over the given migrations and ledger.
func NewMigrator(cfg Config, source MigrationSource, ledger Ledger) *Migrator {
	return &Migrator{
		cfg:     cfg.WithDefaults(),
		source:  source,
		ledger:  ledger,
		tracker: NewTracker(source, ledger),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithLogger sets the logger progress is reported to.
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	if l != nil {
		m.logger = l
	}
	return m
}

// Tracker returns the tracker reading the same migrations and ledger.
func (m *Migrator) Tracker() *Tracker {
	return m.tracker
}

// Migrate applies every pending migration when target is nil. Otherwise it
// applies pending migrations up to and including *target and reverts
// applied migrations above it.
func (m *Migrator) Migrate(ctx context.Context, target *int) ([]Migration, error) {
	log := m.runLogger("migrate")
	migs, applied, err := m.state(ctx)
	if err != nil {
		return nil, err
	}

	var down, up []Migration
	for _, mig := range migs {
		_, isApplied := applied[mig.Version]
		switch {
		case target == nil && !isApplied:
			up = append(up, mig)
		case target != nil && !isApplied && mig.Version <= *target:
			up = append(up, mig)
		case target != nil && isApplied && mig.Version > *target:
			down = append(down, mig)
		}
	}
	if target != nil {
		for v := range applied {
			if v > *target && !containsVersion(migs, v) {
				return nil, fmt.Errorf("%w: %d is applied but its file is missing", ErrUnknownVersion, v)
			}
		}
	}

	sortMigrationsDesc(down)
	done, err := m.runDown(ctx, log, down)
	if err != nil {
		return done, err
	}
	if len(up) > 0 {
		if err := m.validate(ctx, migs, applied); err != nil {
			return done, err
		}
	}
	sortMigrationsAsc(up)
	ran, err := m.runUp(ctx, log, up)
	return append(done, ran...), err
}

// Up applies one migration. It does nothing if the version is already applied.
func (m *Migrator) Up(ctx context.Context, version int) ([]Migration, error) {
	log := m.runLogger("up")
	migs, applied, err := m.state(ctx)
	if err != nil {
		return nil, err
	}
	mig, err := findVersion(migs, version)
	if err != nil {
		return nil, err
	}
	if _, ok := applied[version]; ok {
		log.Info("already applied", slog.Int("version", version))
		return nil, nil
	}
	if err := m.validate(ctx, migs, applied); err != nil {
		return nil, err
	}
	return m.runUp(ctx, log, []Migration{mig})
}

// Down reverts one migration. It does nothing if the version is not applied.
func (m *Migrator) Down(ctx context.Context, version int) ([]Migration, error) {
	log := m.runLogger("down")
	migs, applied, err := m.state(ctx)
	if err != nil {
		return nil, err
	}
	mig, err := findVersion(migs, version)
	if err != nil {
		return nil, err
	}
	if _, ok := applied[version]; !ok {
		log.Info("not applied", slog.Int("version", version))
		return nil, nil
	}
	return m.runDown(ctx, log, []Migration{mig})
}

// Rollback reverts the steps most recently numbered applied migrations.
func (m *Migrator) Rollback(ctx context.Context, steps int) ([]Migration, error) {
	if steps < 0 {
		return nil, fmt.Errorf("steps must not be negative, got %d", steps)
	}
	log := m.runLogger("rollback")
	migs, applied, err := m.state(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]int, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	if steps < len(versions) {
		versions = versions[:steps]
	}
	var down []Migration
	for _, v := range versions {
		mig, err := findVersion(migs, v)
		if err != nil {
			return nil, err
		}
		down = append(down, mig)
	}
	return m.runDown(ctx, log, down)
}

// Forward applies the next steps pending migrations.
func (m *Migrator) Forward(ctx context.Context, steps int) ([]Migration, error) {
	if steps < 0 {
		return nil, fmt.Errorf("steps must not be negative, got %d", steps)
	}
	log := m.runLogger("forward")
	migs, applied, err := m.state(ctx)
	if err != nil {
		return nil, err
	}
	var up []Migration
	for _, mig := range migs {
		if len(up) == steps {
			break
		}
		if _, ok := applied[mig.Version]; !ok {
			up = append(up, mig)
		}
	}
	if len(up) > 0 {
		if err := m.validate(ctx, migs, applied); err != nil {
			return nil, err
		}
	}
	return m.runUp(ctx, log, up)
}

// Redo rolls back steps migrations and applies the same ones again, oldest
// first. Other pending migrations are left alone.
func (m *Migrator) Redo(ctx context.Context, steps int) (reverted, applied []Migration, err error) {
	reverted, err = m.Rollback(ctx, steps)
	if err != nil || len(reverted) == 0 {
		return reverted, nil, err
	}
	again := append([]Migration(nil), reverted...)
	sortMigrationsAsc(again)
	applied, err = m.runUp(ctx, m.runLogger("redo"), again)
	return reverted, applied, err
}

// ValidateMigrations verifies that applied migrations have not changed by
// comparing MD5 checksums. Ledgers that keep no checksums always pass.
func (m *Migrator) ValidateMigrations(ctx context.Context) error {
	migs, applied, err := m.state(ctx)
	if err != nil {
		return err
	}
	return m.checkSums(ctx, migs, applied)
}

func (m *Migrator) validate(ctx context.Context, migs []Migration, applied map[int]struct{}) error {
	if !m.cfg.ValidateChecksums {
		return nil
	}
	return m.checkSums(ctx, migs, applied)
}

func (m *Migrator) checkSums(ctx context.Context, migs []Migration, applied map[int]struct{}) error {
	cl, ok := m.ledger.(ChecksumLedger)
	if !ok {
		return nil
	}
	sums, err := cl.Checksums(ctx)
	if err != nil {
		return err
	}
	for _, mig := range migs {
		if _, ok := applied[mig.Version]; !ok {
			continue
		}
		recorded := sums[mig.Version]
		if recorded != "" && mig.Md5 != "" && recorded != mig.Md5 {
			return &ChecksumError{Version: mig.Version, Recorded: recorded, Current: mig.Md5}
		}
	}
	return nil
}

// runUp applies the provided migrations in sequence.
func (m *Migrator) runUp(ctx context.Context, log *slog.Logger, migs []Migration) ([]Migration, error) {
	var done []Migration
	for _, mig := range migs {
		script, err := mig.Up()
		if err != nil {
			return done, err
		}
		start := time.Now()
		log.Info("migrating", slog.Int("version", mig.Version), slog.String("name", mig.Name))
		rec := Record{Version: mig.Version, Name: mig.Name, Md5: mig.Md5}
		if err := m.ledger.Apply(ctx, rec, script); err != nil {
			return done, fmt.Errorf("migration %d (%s) failed: %w", mig.Version, mig.Name, err)
		}
		log.Info("migrated", slog.Int("version", mig.Version), slog.Duration("elapsed", time.Since(start)))
		done = append(done, mig)
	}
	return done, nil
}

// runDown reverts the provided migrations in sequence.
func (m *Migrator) runDown(ctx context.Context, log *slog.Logger, migs []Migration) ([]Migration, error) {
	var done []Migration
	for _, mig := range migs {
		script, err := mig.Down()
		if err != nil {
			return done, err
		}
		start := time.Now()
		log.Info("reverting", slog.Int("version", mig.Version), slog.String("name", mig.Name))
		if err := m.ledger.Revert(ctx, mig.Version, script); err != nil {
			return done, fmt.Errorf("revert of migration %d (%s) failed: %w", mig.Version, mig.Name, err)
		}
		log.Info("reverted", slog.Int("version", mig.Version), slog.Duration("elapsed", time.Since(start)))
		done = append(done, mig)
	}
	return done, nil
}

func (m *Migrator) state(ctx context.Context) ([]Migration, map[int]struct{}, error) {
	return m.tracker.load(ctx)
}

func (m *Migrator) runLogger(op string) *slog.Logger {
	return m.logger.With(slog.String("run_id", uuid.NewString()), slog.String("op", op))
}

func findVersion(migs []Migration, version int) (Migration, error) {
	for _, mig := range migs {
		if mig.Version == version {
			return mig, nil
		}
	}
	return Migration{}, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
}

func containsVersion(migs []Migration, version int) bool {
	_, err := findVersion(migs, version)
	return err == nil
}
