package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/storesync/backend/internal/infrastructure/config"
	"github.com/storesync/backend/internal/infrastructure/migration"
	"github.com/storesync/backend/migrations"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

// schemaCommand opens a Migrator for fn. sqlite has no versioned
// migrations, see runUp.
func schemaCommand(fn func(*cli, *migration.Migrator) error) func(*cli) error {
	return func(c *cli) error {
		if c.db.Driver() == config.DriverSQLite {
			return errors.New("only up, seed and import are supported for sqlite")
		}
		sqlDB, err := c.db.DB.DB()
		if err != nil {
			return fmt.Errorf("database handle: %w", err)
		}
		var m *migration.Migrator
		if c.migrationsPath != "" {
			m, err = migration.New(sqlDB, resolveMigrationsPath(c.migrationsPath), c.log)
		} else {
			m, err = migration.NewFromFS(sqlDB, migrations.FS, c.log)
		}
		if err != nil {
			return err
		}
		defer m.Close()
		return fn(c, m)
	}
}

// runUp applies pending migrations. On sqlite it creates the schema from
// the models instead.
func runUp(c *cli) error {
	if c.db.Driver() != config.DriverSQLite {
		return schemaCommand(func(_ *cli, m *migration.Migrator) error { return m.Up() })(c)
	}
	if err := c.db.AutoMigrate(); err != nil {
		return fmt.Errorf("create sqlite schema: %w", err)
	}
	c.log.Info("sqlite schema is up to date")
	return nil
}

func downSchema(_ *cli, m *migration.Migrator) error { return m.Down() }

func stepSchema(c *cli, m *migration.Migrator) error {
	raw, err := c.arg(0, "step <n>")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid step count %q", raw)
	}
	return m.Steps(n)
}

func gotoSchema(c *cli, m *migration.Migrator) error {
	raw, err := c.arg(0, "goto <version>")
	if err != nil {
		return err
	}
	version, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version %q", raw)
	}
	return m.GoTo(uint(version))
}

func showVersion(c *cli, m *migration.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		c.log.Info("No migrations applied")
		return nil
	}
	c.log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func forceVersion(c *cli, m *migration.Migrator) error {
	raw, err := c.arg(0, "force <version>")
	if err != nil {
		return err
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid version %q", raw)
	}
	c.log.Warn("Forcing migration version", zap.Int("version", version))
	return m.Force(version)
}

func dropSchema(c *cli, m *migration.Migrator) error {
	if !slices.Contains(c.args, "-confirm") && !slices.Contains(c.args, "--confirm") {
		return errors.New("drop needs -confirm")
	}
	return m.Drop()
}

func runCreate(c *cli) error {
	name, err := c.arg(0, "create <name> [description]")
	if err != nil {
		return err
	}
	description, _ := c.arg(1, "")
	mf, err := migration.CreateMigration(resolveMigrationsPath(c.migrationsPath), name, description)
	if err != nil {
		return err
	}
	c.log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func runList(c *cli) error {
	dir := resolveMigrationsPath(c.migrationsPath)
	names, err := migration.ListMigrations(dir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		c.log.Info("No migrations found", zap.String("path", dir))
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// resolveMigrationsPath returns path made absolute. An empty path means the
// migrations directory of the working directory, or of the source tree the
// binary was built in.
func resolveMigrationsPath(path string) string {
	if path == "" {
		path = defaultMigrationsPath
		if _, err := os.Stat(path); err != nil {
			if exe, err := os.Executable(); err == nil {
				candidate := filepath.Join(filepath.Dir(exe), "..", "..", defaultMigrationsPath)
				if _, err := os.Stat(candidate); err == nil {
					path = candidate
				}
			}
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
