package dbgen

import (
	"errors"
	"io"
	"log/slog"
	"strconv"
)

// Generator scaffolds new migration files.
type Generator struct {
	Component Component
	Writer    *Writer
	Logger    *slog.Logger
}

// NewGenerator creates a Generator writing the component's files into the
// configured migrations directory.
func NewGenerator(cfg Config, c Component) *Generator {
	cfg = cfg.WithDefaults()
	dir := Dir{Path: cfg.MigrationsDir, Ext: c.Ext, Newline: cfg.Newline}
	return &Generator{
		Component: c,
		Writer:    NewWriter(dir),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// ModelMigration writes the migration that creates a model's table.
// model is singular or plural; the table is always the plural form.
func (g *Generator) ModelMigration(filename, model string, fields []string) (MigrationFile, error) {
	specs, err := ParseFields(fields)
	if err != nil {
		return MigrationFile{}, err
	}
	c := g.Component
	table := TableName(model)
	vals := Values{
		MarkerName:      Camelize(table),
		MarkerTable:     table,
		MarkerFilename:  Underscore(filename),
		MarkerFileClass: Camelize(filename),
		MarkerFields:    JoinFragments(specs, c.ColumnFormat, c.FieldSeparator),
	}
	up := Render(c.ModelUp, vals)
	down := Render(c.ModelDown, vals)

	mf, err := g.Writer.Write(filename, func(version int) string {
		full := Values{MarkerUp: c.ModelUp, MarkerDown: c.ModelDown, MarkerVersion: strconv.Itoa(version)}
		for k, v := range vals {
			full[k] = v
		}
		return Render(c.MigrationBase, full)
	})
	if err != nil {
		return MigrationFile{}, err
	}
	mf.Up, mf.Down = up, down
	g.Logger.Info("created model migration", slog.Int("version", mf.Version), slog.String("table", table), slog.String("path", mf.Path))
	return mf, nil
}

// Migration writes a standalone migration. Names like AddEmailToUsers or
// RemoveAgeFromPeople get add/remove column statements for fields; any other
// name produces a migration with empty bodies to be filled in by hand.
func (g *Generator) Migration(filename string, fields []string) (MigrationFile, error) {
	c := g.Component
	name, err := ParseMigrationName(filename)
	if errors.Is(err, ErrAmbiguousMigrationName) {
		g.Logger.Info("writing empty migration", slog.String("name", filename), slog.String("reason", err.Error()))
	}

	var specs []ColumnSpec
	if name.Direction != DirectionNone {
		specs, err = ParseFields(fields)
		if err != nil {
			return MigrationFile{}, err
		}
	}

	var forward, back string
	if len(specs) > 0 {
		add := func(s ColumnSpec) string { return c.Add(name.Table, s) }
		remove := func(s ColumnSpec) string { return c.Remove(name.Table, s) }
		forward = Render(c.ChangeFormat, Values{
			MarkerTable:   name.Table,
			MarkerColumns: JoinFragments(specs, add, c.ColumnSeparator),
		})
		back = Render(c.ChangeFormat, Values{
			MarkerTable:   name.Table,
			MarkerColumns: JoinFragments(specs, remove, c.ColumnSeparator),
		})
	}
	up, down := forward, back
	if name.Direction == DirectionRemove {
		up, down = back, forward
	}

	mf, err := g.Writer.Write(filename, func(version int) string {
		return Render(c.MigrationBase, Values{
			MarkerUp:        up,
			MarkerDown:      down,
			MarkerFilename:  Underscore(filename),
			MarkerFileClass: Camelize(filename),
			MarkerVersion:   strconv.Itoa(version),
		})
	})
	if err != nil {
		return MigrationFile{}, err
	}
	mf.Up, mf.Down = up, down
	g.Logger.Info("created migration", slog.Int("version", mf.Version), slog.String("direction", name.Direction.String()), slog.String("path", mf.Path))
	return mf, nil
}
