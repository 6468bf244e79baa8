// Command migrate manages the storesync schema and loads source catalog data.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/storesync/backend/internal/infrastructure/config"
	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// cli holds the parsed flags and the resources a command may need
type cli struct {
	migrationsPath string
	seedItems      int
	seedValue      uint64
	delimiter      string

	args []string
	log  *zap.Logger
	db   *persistence.Database
}

type command struct {
	// offline commands only touch the filesystem
	offline bool
	run     func(*cli) error
}

var commands = map[string]command{
	"create":  {offline: true, run: runCreate},
	"list":    {offline: true, run: runList},
	"seed":    {run: runSeed},
	"import":  {run: runImport},
	"up":      {run: runUp},
	"down":    {run: schemaCommand(downSchema)},
	"step":    {run: schemaCommand(stepSchema)},
	"goto":    {run: schemaCommand(gotoSchema)},
	"version": {run: schemaCommand(showVersion)},
	"force":   {run: schemaCommand(forceVersion)},
	"drop":    {run: schemaCommand(dropSchema)},
}

func main() {
	c := &cli{}
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&c.migrationsPath, "path", "", "Migrations directory; empty uses the migrations built into the binary")
	flag.IntVar(&c.seedItems, "items", 50, "Number of demo catalog items written by seed")
	flag.Uint64Var(&c.seedValue, "seed", 1, "Random seed for the demo catalog (0 = random)")
	flag.StringVar(&c.delimiter, "delimiter", ",", "Field delimiter of the CSV file read by import")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}
	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		printUsage()
		os.Exit(1)
	}
	c.args = flag.Args()[1:]

	// A missing .env file is fine; real deployments use the environment
	_ = godotenv.Load()

	log, err := logger.New(&logger.Config{Level: *logLevel, Format: "console", TimeFormat: "2006-01-02 15:04:05"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()
	c.log = log.With(zap.String("command", name))

	if !cmd.offline {
		cfg, err := config.Load()
		if err != nil {
			c.log.Fatal("Failed to load configuration", zap.Error(err))
		}
		c.db, err = persistence.NewDatabase(&cfg.Database,
			persistence.WithLogger(logger.NewGormLogger(log, logger.MapGormLogLevel("warn"))),
		)
		if err != nil {
			c.log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer c.db.Close()
		c.log = c.log.With(zap.String("driver", c.db.Driver()))
	}

	if err := cmd.run(c); err != nil {
		c.log.Fatal("Command failed", zap.Error(err))
	}
}

// arg returns the i-th command argument or fails with usage
func (c *cli) arg(i int, usage string) (string, error) {
	if i >= len(c.args) {
		return "", fmt.Errorf("missing argument, usage: migrate %s", usage)
	}
	return c.args[i], nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `storesync database migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations (sqlite: create the schema)
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Force set migration version (use with caution)
  drop -confirm         Drop all database objects
  create <name> [desc]  Create the next numbered migration file pair
  list                  List migrations in the migrations directory
  seed                  Write a generated demo source catalog
  import <file.csv>     Load source catalog items from a CSV file

Flags:
`)
	flag.PrintDefaults()
	fmt.Fprint(os.Stderr, `
Database settings come from STORESYNC_DATABASE_* variables or a .env file.

Examples:
  migrate step -1
  migrate create add_store_region "Add a region column to stores"
  migrate -items 200 seed
  migrate -delimiter ";" import catalog.csv
`)
}
