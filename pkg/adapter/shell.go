package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// shellOnly is embedded by adapters that can only dump structure through a
// vendor tool.
type shellOnly struct {
	cfg DatabaseConfig
}

func (s shellOnly) Dialect() Dialect     { return ansiDialect{} }
func (s shellOnly) DatabaseName() string { return s.cfg.Database }
func (s shellOnly) IsLocal() bool        { return isLocalHost(s.cfg.Host) }

func (s shellOnly) Open(context.Context) (*sql.DB, error) { return nil, ErrUnsupported }
func (s shellOnly) Create(context.Context) error          { return ErrUnsupported }
func (s shellOnly) Drop(context.Context) error            { return ErrUnsupported }

func (s shellOnly) Charset(context.Context) (string, error)   { return "", ErrUnsupported }
func (s shellOnly) Collation(context.Context) (string, error) { return "", ErrUnsupported }

// SQLServer dumps structure with scptxfr.
type SQLServer struct{ shellOnly }

func newSQLServer(cfg DatabaseConfig) *SQLServer {
	return &SQLServer{shellOnly{cfg: cfg}}
}

func (s *SQLServer) Name() string { return "sqlserver" }

// DumpStructure has scptxfr script the database to a scratch file and copies it to w.
func (s *SQLServer) DumpStructure(ctx context.Context, w io.Writer) error {
	dir, err := os.MkdirTemp("", "dbgen-scptxfr")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "structure.sql")
	if err := runTool(ctx, io.Discard, nil, "scptxfr",
		"/s", s.cfg.Host, "/d", s.cfg.Database, "/I", "/f", out, "/q", "/A", "/r"); err != nil {
		return err
	}
	f, err := os.Open(out)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Firebird dumps structure with isql.
type Firebird struct{ shellOnly }

func newFirebird(cfg DatabaseConfig) *Firebird {
	return &Firebird{shellOnly{cfg: cfg}}
}

func (f *Firebird) Name() string { return "firebird" }

// dbString is host[/port]:database, or just the database for local files.
func (f *Firebird) dbString() string {
	if f.cfg.Host == "" {
		return f.cfg.Database
	}
	host := f.cfg.Host
	if f.cfg.Port != 0 {
		host += "/" + strconv.Itoa(f.cfg.Port)
	}
	return fmt.Sprintf("%s:%s", host, f.cfg.Database)
}

func (f *Firebird) DumpStructure(ctx context.Context, w io.Writer) error {
	var env []string
	if f.cfg.Username != "" {
		env = append(env, "ISC_USER="+f.cfg.Username)
	}
	if f.cfg.Password != "" {
		env = append(env, "ISC_PASSWORD="+f.cfg.Password)
	}
	return runTool(ctx, w, env, "isql", "-a", f.dbString())
}
