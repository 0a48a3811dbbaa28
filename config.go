package dbgen

import (
	"fmt"
	"io"
	"log/slog"
)

// Config holds settings for generating and running migrations.
type Config struct {
	// MigrationsDir is the directory migration files live in.
	MigrationsDir string `json:"migrationsDir,omitempty" yaml:"migrations_dir,omitempty"`

	// Component names the migration flavour, "sql" or "activerecord".
	Component string `json:"component,omitempty" yaml:"component,omitempty"`

	// SchemaTable is the name of the ledger table.
	SchemaTable string `json:"schemaTable,omitempty" yaml:"schema_table,omitempty"`

	// SchemaFile is where schema dumps are written and loaded from.
	SchemaFile string `json:"schemaFile,omitempty" yaml:"schema_file,omitempty"`

	// Newline is the line-ending style checksums are computed with ("LF", "CR", or "CRLF").
	Newline string `json:"newline,omitempty" yaml:"newline,omitempty"`

	// ValidateChecksums refuses to migrate when an applied file changed.
	ValidateChecksums bool `json:"validateChecksums,omitempty" yaml:"validate_checksums,omitempty"`

	// Verbose turns on progress logging.
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// DefaultConfig provides default values for configuration.
var DefaultConfig = Config{
	MigrationsDir:     "db/migrate",
	Component:         SQL.Name,
	SchemaTable:       "schema_migrations",
	SchemaFile:        "db/schema.sql",
	ValidateChecksums: true,
}

// WithDefaults fills empty fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	if c.MigrationsDir == "" {
		c.MigrationsDir = DefaultConfig.MigrationsDir
	}
	if c.Component == "" {
		c.Component = DefaultConfig.Component
	}
	if c.SchemaTable == "" {
		c.SchemaTable = DefaultConfig.SchemaTable
	}
	if c.SchemaFile == "" {
		c.SchemaFile = DefaultConfig.SchemaFile
	}
	return c
}

// LookupComponent returns the component the config names.
func (c Config) LookupComponent() (Component, error) {
	comp, ok := Components[c.WithDefaults().Component]
	if !ok {
		return Component{}, fmt.Errorf("component '%s' not supported. Must be one of: sql or activerecord", c.Component)
	}
	return comp, nil
}

// Dir returns the migrations directory for the configured component.
func (c Config) Dir() (Dir, error) {
	comp, err := c.LookupComponent()
	if err != nil {
		return Dir{}, err
	}
	c = c.WithDefaults()
	return Dir{Path: c.MigrationsDir, Ext: comp.Ext, Newline: c.Newline}, nil
}

// Logger returns a text logger on w when Verbose is set and a silent one otherwise.
func (c Config) Logger(w io.Writer) *slog.Logger {
	if !c.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
