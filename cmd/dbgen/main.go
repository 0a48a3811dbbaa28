// Package main implements the dbgen CLI. It generates numbered migration
// files, runs them against the database named in config/database.yml (or
// DATABASE_URL), and manages the databases themselves.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bcomnes/dbgen"
	"github.com/bcomnes/dbgen/internal/statusapi"
	"github.com/bcomnes/dbgen/pkg/adapter"
)

var versionString = dbgen.Version

// usage prints the help text.
func usage() {
	header := `Usage:
  dbgen [options] [command] [arguments]

Commands:
  generate model <name> [field:type...]      Create a migration that creates the model's table.
  generate migration <Name> [field:type...]  Create a migration. AddXToY / RemoveXFromY names get column changes.
  migrate [version]     Migrate to version (or $VERSION), or apply everything pending.
  migrate:up <version>  Apply a single migration.
  migrate:down <version>
                        Revert a single migration.
  migrate:redo          Roll back $STEP migrations (default 1) and apply them again.
  migrate:reset         Drop, create and migrate the database.
  rollback [steps]      Revert the most recent migrations (default 1).
  forward [steps]       Apply the next pending migrations (default 1).
  version               Print the current schema version.
  pending               Fail if any migration is pending.
  list                  List migrations and whether they are applied.
  create | create:all   Create the database (all local databases).
  drop | drop:all       Drop the database (all local databases).
  setup                 Create the database and load the schema file.
  reset                 Drop the database and set it up again.
  charset | collation   Print the database character set or collation.
  schema:dump           Dump the structure and applied versions to the schema file.
  schema:load           Load the schema file into the database.
  structure:dump        Dump the structure to db/<env>_structure.sql.
  serve                 Serve migration status over HTTP.

Options:`
	fmt.Fprintln(os.Stderr, header)
	flag.PrintDefaults()
}

func main() {
	// Define global flags.
	configPath := flag.String("config", "config/database.yml", "Path to the YAML or JSON database file")
	envName := flag.String("env", "", "Environment to use (default: $DBGEN_ENV or development)")
	connURL := flag.String("url", "", "Database URL. Can also be set via DATABASE_URL env var.")
	migrationsDir := flag.String("migrations-dir", "", "Directory holding migration files (default \"db/migrate\")")
	component := flag.String("component", "", "Migration flavour: sql or activerecord (default \"sql\")")
	schemaTable := flag.String("schema-table", "", "Name of the ledger table (default \"schema_migrations\")")
	schemaFile := flag.String("schema-file", "", "Schema dump file (default \"db/schema.sql\"). Can also be set via SCHEMA env var.")
	newline := flag.String("newline", "", "Newline style for checksums: LF, CR, or CRLF")
	noValidate := flag.Bool("no-validate-checksums", false, "Do not refuse to migrate when an applied file changed")
	verbose := flag.Bool("verbose", false, "Log progress. Can also be set via VERBOSE env var.")
	addr := flag.String("addr", ":8080", "Listen address for serve")
	origins := flag.String("origins", "", "Comma separated CORS origins for serve")
	helpFlag := flag.Bool("help", false, "Show help message")
	versionFlag := flag.Bool("version", false, "Show version")

	flag.Usage = usage
	flag.Parse()

	// Flags after the command would be taken as arguments.
	for _, arg := range flag.Args() {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintln(os.Stderr, "Error: Flags must be specified before the command. Please reorder your arguments.")
			usage()
			os.Exit(1)
		}
	}

	if *helpFlag {
		usage()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Println("dbgen version:", versionString)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no command provided.")
		usage()
		os.Exit(1)
	}

	if err := loadDotEnv(".env"); err != nil {
		fail("Error loading .env: %v", err)
	}
	env := firstNonEmpty(*envName, os.Getenv("DBGEN_ENV"), "development")
	project, err := loadProject(*configPath, env)
	if err != nil {
		fail("Error loading config file: %v", err)
	}
	project.applyEnv(os.Getenv)

	// Flags win over the environment and the file.
	cfg := &project.Config
	if *migrationsDir != "" {
		cfg.MigrationsDir = *migrationsDir
	}
	if *component != "" {
		cfg.Component = *component
	}
	if *schemaTable != "" {
		cfg.SchemaTable = *schemaTable
	}
	if *schemaFile != "" {
		cfg.SchemaFile = *schemaFile
	}
	if *newline != "" {
		cfg.Newline = *newline
	}
	if *noValidate {
		cfg.ValidateChecksums = false
	}
	if *verbose {
		cfg.Verbose = true
	}
	if *connURL != "" {
		db := project.Environments[env]
		db.URL = *connURL
		db.Adapter = firstNonEmpty(adapterFromURL(*connURL), db.Adapter)
		project.Environments[env] = db
	}
	*cfg = cfg.WithDefaults()

	c := &cli{project: project, cfg: *cfg, logger: cfg.Logger(os.Stderr)}
	command, rest := args[0], args[1:]

	switch command {
	case "generate", "g":
		c.generate(rest)
	case "migrate":
		target, err := versionArg(rest, false)
		if err != nil {
			fail("Error: %v", err)
		}
		c.migrate(target)
	case "migrate:up", "migrate:down":
		target, err := versionArg(rest, true)
		if err != nil {
			fail("Error: %v", err)
		}
		c.single(command, *target)
	case "migrate:redo":
		c.redo(rest)
	case "migrate:reset":
		c.drop()
		c.create()
		c.migrate(nil)
	case "rollback", "forward":
		c.step(command, rest)
	case "version":
		c.version()
	case "pending":
		c.pending()
	case "list":
		c.list()
	case "create":
		c.create()
	case "create:all":
		c.forEachLocal("create", (*cli).create)
	case "drop":
		c.drop()
	case "drop:all":
		c.forEachLocal("drop", (*cli).drop)
	case "setup":
		c.create()
		c.schemaLoad()
	case "reset":
		c.drop()
		c.create()
		c.schemaLoad()
	case "charset", "collation":
		c.describe(command)
	case "schema:dump":
		c.dump(c.cfg.SchemaFile)
	case "schema:load":
		c.schemaLoad()
	case "structure:dump":
		c.dump(filepath.Join(filepath.Dir(c.cfg.SchemaFile), c.project.Env+"_structure.sql"))
	case "serve":
		c.serve(*addr, *origins)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}
}

type cli struct {
	project *Project
	cfg     dbgen.Config
	logger  *slog.Logger
}

func say(format string, args ...any) {
	fmt.Printf("[%s] %s\n", time.Now().Format(time.Kitchen), fmt.Sprintf(format, args...))
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// versionArg reads the target version from the first argument or VERSION.
func versionArg(args []string, required bool) (*int, error) {
	s := os.Getenv("VERSION")
	if len(args) > 0 {
		s = args[0]
	}
	if s == "" {
		if required {
			return nil, errors.New("VERSION is required")
		}
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("invalid version: %s", s)
	}
	return &v, nil
}

// stepArg reads a step count from the first argument or STEP, default 1.
func stepArg(args []string) (int, error) {
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid steps: %s", args[0])
		}
		return n, nil
	}
	n, err := envInt(os.Getenv, "STEP", 1)
	if err == nil && n < 0 {
		err = fmt.Errorf("invalid STEP: %d", n)
	}
	return n, err
}

func (c *cli) generate(args []string) {
	if len(args) < 2 {
		fail("Error: usage is 'generate model <name> [field:type...]' or 'generate migration <Name> [field:type...]'")
	}
	comp, err := c.cfg.LookupComponent()
	if err != nil {
		fail("%v", err)
	}
	g := dbgen.NewGenerator(c.cfg, comp)
	g.Logger = c.logger

	kind, name, fields := args[0], args[1], args[2:]
	var mf dbgen.MigrationFile
	switch kind {
	case "model":
		mf, err = g.ModelMigration("create_"+dbgen.TableName(name), name, fields)
	case "migration":
		mf, err = g.Migration(name, fields)
	default:
		fail("Unknown generator: %s. Must be model or migration", kind)
	}
	if err != nil {
		fail("Error generating migration: %v", err)
	}
	say("Created %s", mf.Path)
}

// adapter resolves the adapter for the current environment.
func (c *cli) adapter() adapter.Adapter {
	dbCfg, err := c.project.Database()
	if err != nil {
		fail("Error: %v. Set DATABASE_URL or add it to the database file", err)
	}
	a, err := adapter.New(dbCfg)
	if err != nil {
		fail("Error: %v", err)
	}
	return a
}

// withMigrator opens the database and hands a migrator over it to f.
func (c *cli) withMigrator(f func(ctx context.Context, m *dbgen.Migrator, l *adapter.Ledger)) {
	a := c.adapter()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := a.Open(ctx)
	if err != nil {
		fail("Error opening database: %v", err)
	}
	defer db.Close()

	dir, err := c.cfg.Dir()
	if err != nil {
		fail("%v", err)
	}
	l := adapter.NewLedger(db, a.Dialect(), c.cfg.SchemaTable)
	m := dbgen.NewMigrator(c.cfg, dir, l).WithLogger(c.logger)
	f(ctx, m, l)
}

func (c *cli) migrate(target *int) {
	c.withMigrator(func(ctx context.Context, m *dbgen.Migrator, _ *adapter.Ledger) {
		to := "latest"
		if target != nil {
			to = strconv.Itoa(*target)
		}
		say("Starting migration to version %s...", to)
		done, err := m.Migrate(ctx, target)
		printRun("Migrated", done)
		if err != nil {
			fail("Migration error: %v", err)
		}
	})
}

func (c *cli) single(command string, version int) {
	c.withMigrator(func(ctx context.Context, m *dbgen.Migrator, _ *adapter.Ledger) {
		var done []dbgen.Migration
		var err error
		if command == "migrate:up" {
			done, err = m.Up(ctx, version)
			printRun("Migrated", done)
		} else {
			done, err = m.Down(ctx, version)
			printRun("Reverted", done)
		}
		if err != nil {
			fail("Migration error: %v", err)
		}
	})
}

func (c *cli) redo(args []string) {
	if target, err := versionArg(args, false); err != nil {
		fail("Error: %v", err)
	} else if target != nil {
		c.single("migrate:down", *target)
		c.single("migrate:up", *target)
		return
	}
	steps, err := stepArg(nil)
	if err != nil {
		fail("Error: %v", err)
	}
	c.withMigrator(func(ctx context.Context, m *dbgen.Migrator, _ *adapter.Ledger) {
		reverted, applied, err := m.Redo(ctx, steps)
		printRun("Reverted", reverted)
		printRun("Migrated", applied)
		if err != nil {
			fail("Migration error: %v", err)
		}
	})
}

func (c *cli) step(command string, args []string) {
	steps, err := stepArg(args)
	if err != nil {
		fail("Error: %v", err)
	}
	c.withMigrator(func(ctx context.Context, m *dbgen.Migrator, _ *adapter.Ledger) {
		if command == "rollback" {
			say("Rolling back %d migration(s)...", steps)
			done, err := m.Rollback(ctx, steps)
			printRun("Reverted", done)
			if err != nil {
				fail("Rollback error: %v", err)
			}
			return
		}
		say("Applying %d migration(s)...", steps)
		done, err := m.Forward(ctx, steps)
		printRun("Migrated", done)
		if err != nil {
			fail("Migration error: %v", err)
		}
	})
}

func printRun(verb string, migs []dbgen.Migration) {
	say("%s %d migration(s)", verb, len(migs))
	for _, m := range migs {
		fmt.Printf("  - Version %d: %s (%s)\n", m.Version, m.Name, m.Filename)
	}
}

func (c *cli) version() {
	c.withMigrator(func(ctx context.Context, m *dbgen.Migrator, _ *adapter.Ledger) {
		v, ok, err := m.Tracker().CurrentVersion(ctx)
		if err != nil {
			fail("Error fetching current version: %v", err)
		}
		if !ok {
			fmt.Println("Current version: none")
			return
		}
		fmt.Printf("Current version: %d\n", v)
	})
}

func (c *cli) pending() {
	c.withMigrator(func(ctx context.Context, m *dbgen.Migrator, _ *adapter.Ledger) {
		err := m.Tracker().AbortIfPending(ctx)
		var pending *dbgen.PendingMigrationsError
		if errors.As(err, &pending) {
			fmt.Fprintln(os.Stderr, pending.Error())
			os.Exit(1)
		}
		if err != nil {
			fail("Error checking pending migrations: %v", err)
		}
		say("No pending migrations.")
	})
}

func (c *cli) list() {
	c.withMigrator(func(ctx context.Context, m *dbgen.Migrator, _ *adapter.Ledger) {
		current, ok, err := m.Tracker().CurrentVersion(ctx)
		if err != nil {
			fail("Error fetching current database version: %v", err)
		}
		status, err := m.Tracker().Status(ctx)
		if err != nil {
			fail("Error loading migrations: %v", err)
		}
		if ok {
			fmt.Printf("Current database migration version: %d\n", current)
		} else {
			fmt.Println("Current database migration version: none")
		}
		fmt.Println("Available migrations:")
		for _, s := range status {
			state := "down"
			if s.Applied {
				state = "up"
			}
			name, file := s.Name, s.Filename
			if file == "" {
				name, file = "********** NO FILE **********", "-"
			}
			annot := ""
			if ok && s.Version == current {
				annot = " <== current"
			}
			fmt.Printf("%-4s Version %d: %s (%s)%s\n", state, s.Version, name, file, annot)
		}
	})
}

func (c *cli) create() {
	a := c.adapter()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := a.Create(ctx)
	switch {
	case errors.Is(err, adapter.ErrDatabaseExists):
		say("%s already exists", a.DatabaseName())
	case err != nil:
		fail("Error creating database: %v", err)
	default:
		say("Created database %s", a.DatabaseName())
	}
}

func (c *cli) drop() {
	a := c.adapter()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := a.Drop(ctx); err != nil {
		fail("Couldn't drop %s: %v", a.DatabaseName(), err)
	}
	say("Dropped database %s", a.DatabaseName())
}

// forEachLocal runs op for every configured environment whose database is on
// this machine.
func (c *cli) forEachLocal(op string, f func(*cli)) {
	envs := make([]string, 0, len(c.project.Environments))
	for env := range c.project.Environments {
		envs = append(envs, env)
	}
	sort.Strings(envs)
	for _, env := range envs {
		a, err := adapter.New(c.project.Environments[env])
		if err != nil {
			fail("Error: %s: %v", env, err)
		}
		if !a.IsLocal() {
			say("This task only modifies local databases. %s is on a remote host.", a.DatabaseName())
			continue
		}
		other := *c
		p := *c.project
		p.Env = env
		other.project = &p
		c.logger.Debug("running for environment", slog.String("op", op), slog.String("env", env))
		f(&other)
	}
}

func (c *cli) describe(what string) {
	a := c.adapter()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	var val string
	var err error
	if what == "charset" {
		val, err = a.Charset(ctx)
	} else {
		val, err = a.Collation(ctx)
	}
	if errors.Is(err, adapter.ErrUnsupported) {
		fail("sorry, your database adapter is not supported yet, feel free to submit a patch")
	}
	if err != nil {
		fail("Error reading %s: %v", what, err)
	}
	fmt.Println(val)
}

func (c *cli) dump(path string) {
	a := c.adapter()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var ledger *adapter.Ledger
	if db, err := a.Open(ctx); err == nil {
		defer db.Close()
		ledger = adapter.NewLedger(db, a.Dialect(), c.cfg.SchemaTable)
	} else if !errors.Is(err, adapter.ErrUnsupported) {
		fail("Error opening database: %v", err)
	}
	say("Dumping %s to %s...", a.DatabaseName(), path)
	if err := adapter.DumpSchema(ctx, a, ledger, path); err != nil {
		fail("Error dumping schema: %v", err)
	}
	say("Schema dumped.")
}

func (c *cli) schemaLoad() {
	a := c.adapter()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	db, err := a.Open(ctx)
	if err != nil {
		fail("Error opening database: %v", err)
	}
	defer db.Close()
	say("Loading %s...", c.cfg.SchemaFile)
	if err := adapter.LoadSchema(ctx, db, c.cfg.SchemaFile); err != nil {
		fail("Error loading schema: %v", err)
	}
	say("Schema loaded.")
}

func (c *cli) serve(addr, origins string) {
	a := c.adapter()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := a.Open(ctx)
	if err != nil {
		fail("Error opening database: %v", err)
	}
	defer db.Close()
	dir, err := c.cfg.Dir()
	if err != nil {
		fail("%v", err)
	}

	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	tracker := dbgen.NewTracker(dir, adapter.NewLedger(db, a.Dialect(), c.cfg.SchemaTable))
	router := statusapi.NewRouter(tracker, statusapi.Options{
		AllowedOrigins: allowed,
		Version:        versionString,
		Logger:         c.logger,
	})
	say("Serving migration status for %s on %s", a.DatabaseName(), addr)
	if err := statusapi.Serve(ctx, addr, router); err != nil {
		fail("Server error: %v", err)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
