package dbgen

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLedger is an in-memory Ledger recording the scripts it was asked to run.
type memLedger struct {
	applied map[int]Record
	scripts []string
	failOn  string
}

func newMemLedger(versions ...int) *memLedger {
	l := &memLedger{applied: map[int]Record{}}
	for _, v := range versions {
		l.applied[v] = Record{Version: v}
	}
	return l
}

func (l *memLedger) AppliedVersions(context.Context) ([]int, error) {
	out := make([]int, 0, len(l.applied))
	for v := range l.applied {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func (l *memLedger) Apply(_ context.Context, rec Record, script string) error {
	if l.failOn != "" && strings.Contains(script, l.failOn) {
		return errors.New("syntax error")
	}
	l.scripts = append(l.scripts, script)
	l.applied[rec.Version] = rec
	return nil
}

func (l *memLedger) Revert(_ context.Context, version int, script string) error {
	if l.failOn != "" && strings.Contains(script, l.failOn) {
		return errors.New("syntax error")
	}
	l.scripts = append(l.scripts, script)
	delete(l.applied, version)
	return nil
}

func (l *memLedger) Checksums(context.Context) (map[int]string, error) {
	sums := map[int]string{}
	for v, r := range l.applied {
		sums[v] = r.Md5
	}
	return sums, nil
}

// sqlMigrations writes n migrations whose scripts are "up N" and "down N".
func sqlMigrations(t *testing.T, versions ...int) Dir {
	t.Helper()
	files := map[string]string{}
	for _, v := range versions {
		name := fmt.Sprintf("%03d_step_%d.sql", v, v)
		files[name] = fmt.Sprintf("%s\nup %d\n%s\ndown %d\n", UpSection, v, DownSection, v)
	}
	return Dir{Path: writeMigrations(t, files), Ext: ".sql"}
}

func TestTrackerPendingAndCurrent(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(sqlMigrations(t, 1, 2, 3), newMemLedger(1, 2))

	pending, err := tr.PendingMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Version)
	assert.Equal(t, "step_3", pending[0].Name)

	v, ok, err := tr.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTrackerEmptyLedger(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(sqlMigrations(t, 2, 1), newMemLedger())

	_, ok, err := tr.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := tr.PendingMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Version, "pending is ascending")
}

func TestTrackerNothingPendingWhenInSync(t *testing.T) {
	tr := NewTracker(sqlMigrations(t, 1, 2), newMemLedger(1, 2))
	assert.NoError(t, tr.AbortIfPending(context.Background()))
}

func TestTrackerAbortIfPending(t *testing.T) {
	tr := NewTracker(sqlMigrations(t, 1, 2, 3), newMemLedger(1))
	err := tr.AbortIfPending(context.Background())

	var pending *PendingMigrationsError
	require.ErrorAs(t, err, &pending)
	assert.Len(t, pending.Pending, 2)
	assert.Equal(t, "You have 2 pending migrations:\n"+
		"     2 step_2\n"+
		"     3 step_3\n"+
		`Run "dbgen migrate" to update your database then try again.`, err.Error())
}

func TestTrackerStatus(t *testing.T) {
	tr := NewTracker(sqlMigrations(t, 1, 3), newMemLedger(1, 2))
	status, err := tr.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 3)

	assert.Equal(t, 1, status[0].Version)
	assert.True(t, status[0].Applied)
	assert.Equal(t, 2, status[1].Version)
	assert.True(t, status[1].Applied)
	assert.Empty(t, status[1].Filename, "applied but missing from disk")
	assert.Equal(t, 3, status[2].Version)
	assert.False(t, status[2].Applied)
}

func TestTrackerDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	l := newMemLedger(1)
	tr := NewTracker(sqlMigrations(t, 1, 2), l)
	_, err := tr.PendingMigrations(ctx)
	require.NoError(t, err)
	_, err = tr.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, l.scripts)
}
