package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bcomnes/dbgen"
	"github.com/bcomnes/dbgen/pkg/adapter"
)

// settingsKey is the top-level key of the database file holding dbgen.Config
// rather than an environment.
const settingsKey = "dbgen"

// Project is everything loaded from the database file and the environment.
type Project struct {
	Config       dbgen.Config
	Env          string
	Environments map[string]adapter.DatabaseConfig
}

// Database returns the configuration of the current environment.
func (p *Project) Database() (adapter.DatabaseConfig, error) {
	cfg, ok := p.Environments[p.Env]
	if !ok {
		return adapter.DatabaseConfig{}, fmt.Errorf("no database configured for environment '%s'", p.Env)
	}
	return cfg, nil
}

// loadDotEnv reads .env files into the process environment without
// overriding variables that are already set.
func loadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// loadProject reads the database file at path. A missing file is fine as long
// as DATABASE_URL supplies the connection.
func loadProject(path, env string) (*Project, error) {
	p := &Project{Config: dbgen.DefaultConfig, Env: env, Environments: map[string]adapter.DatabaseConfig{}}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return p, nil
	case err != nil:
		return nil, err
	}

	settings := struct {
		Dbgen dbgen.Config `json:"dbgen" yaml:"dbgen"`
	}{Dbgen: dbgen.DefaultConfig}
	if isJSON(path) {
		err = json.Unmarshal(data, &p.Environments)
		if err == nil {
			err = json.Unmarshal(data, &settings)
		}
	} else {
		err = yaml.Unmarshal(data, &p.Environments)
		if err == nil {
			err = yaml.Unmarshal(data, &settings)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	p.Config = settings.Dbgen
	delete(p.Environments, settingsKey)
	return p, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// applyEnv layers environment variables over the loaded file.
func (p *Project) applyEnv(getenv func(string) string) {
	db := p.Environments[p.Env]
	if u := getenv("DATABASE_URL"); u != "" {
		db.URL = u
		if db.Adapter == "" {
			db.Adapter = adapterFromURL(u)
		}
	}
	if v := getenv("CHARSET"); v != "" {
		db.Charset = v
	}
	if v := getenv("COLLATION"); v != "" {
		db.Collation = v
	}
	if db != (adapter.DatabaseConfig{}) {
		p.Environments[p.Env] = db
	}
	if v := getenv("SCHEMA"); v != "" {
		p.Config.SchemaFile = v
	}
	if truthy(getenv("VERBOSE")) {
		p.Config.Verbose = true
	}
}

// adapterFromURL guesses the adapter from a URL scheme.
func adapterFromURL(u string) string {
	scheme, _, ok := strings.Cut(u, "://")
	if !ok {
		scheme, _, ok = strings.Cut(u, ":")
		if !ok {
			return ""
		}
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return "postgresql"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "duckdb":
		return "duckdb"
	}
	return ""
}

func truthy(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// envInt reads an integer environment variable, returning def when unset.
func envInt(getenv func(string) string, name string, def int) (int, error) {
	s := getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", name, s)
	}
	return n, nil
}
