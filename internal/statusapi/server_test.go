package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcomnes/dbgen"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLedger struct {
	applied []int
	err     error
}

func (f *fakeLedger) AppliedVersions(context.Context) ([]int, error) { return f.applied, f.err }
func (f *fakeLedger) Apply(context.Context, dbgen.Record, string) error {
	return errors.New("read only")
}
func (f *fakeLedger) Revert(context.Context, int, string) error { return errors.New("read only") }

func migrationsDir(t *testing.T, names ...string) dbgen.Dir {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		body := "-- migrate:up\nSELECT 1;\n-- migrate:down\nSELECT 1;\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(body), 0o644))
	}
	return dbgen.Dir{Path: dir, Ext: ".sql"}
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func TestHealthz(t *testing.T) {
	r := NewRouter(dbgen.NewTracker(migrationsDir(t), &fakeLedger{}), Options{Version: "v1.2.3"})
	w, body := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v1.2.3", body["dbgen"])
}

func TestVersion(t *testing.T) {
	dir := migrationsDir(t, "001_create_users.sql", "002_create_posts.sql")

	r := NewRouter(dbgen.NewTracker(dir, &fakeLedger{}), Options{})
	_, body := get(t, r, "/version")
	assert.Nil(t, body["version"])

	r = NewRouter(dbgen.NewTracker(dir, &fakeLedger{applied: []int{1, 2}}), Options{})
	_, body = get(t, r, "/version")
	assert.EqualValues(t, 2, body["version"])
}

func TestPending(t *testing.T) {
	dir := migrationsDir(t, "001_create_users.sql", "002_create_posts.sql", "003_add_email_to_users.sql")

	r := NewRouter(dbgen.NewTracker(dir, &fakeLedger{applied: []int{1}}), Options{})
	w, body := get(t, r, "/pending")
	assert.Equal(t, http.StatusConflict, w.Code)
	pending := body["pending"].([]any)
	require.Len(t, pending, 2)
	assert.Equal(t, "create_posts", pending[0].(map[string]any)["name"])
	assert.Contains(t, body["message"], "You have 2 pending migrations:")

	r = NewRouter(dbgen.NewTracker(dir, &fakeLedger{applied: []int{1, 2, 3}}), Options{})
	w, body = get(t, r, "/pending")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["pending"])
}

func TestMigrationsIncludesLedgerOnlyVersions(t *testing.T) {
	dir := migrationsDir(t, "001_create_users.sql")
	r := NewRouter(dbgen.NewTracker(dir, &fakeLedger{applied: []int{1, 9}}), Options{})
	w, body := get(t, r, "/migrations")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])
	migs := body["migrations"].([]any)
	last := migs[1].(map[string]any)
	assert.EqualValues(t, 9, last["version"])
	assert.Equal(t, true, last["applied"])
}

func TestLedgerErrorIs500(t *testing.T) {
	r := NewRouter(dbgen.NewTracker(migrationsDir(t), &fakeLedger{err: errors.New("connection refused")}), Options{})
	w, body := get(t, r, "/version")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "connection refused", body["error"])
}

func TestCORS(t *testing.T) {
	r := NewRouter(dbgen.NewTracker(migrationsDir(t), &fakeLedger{}), Options{AllowedOrigins: []string{"http://localhost:3000"}})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
