package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/storesync/backend/internal/infrastructure/config"
	"github.com/storesync/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is an open gorm connection for one of the supported drivers
type Database struct {
	DB     *gorm.DB
	driver string
}

// Option configures NewDatabase
type Option func(*options)

type options struct {
	logger      logger.Interface
	autoMigrate bool
}

// WithLogLevel uses gorm's default logger at level. The default is silent.
func WithLogLevel(level logger.LogLevel) Option {
	return func(o *options) { o.logger = logger.Default.LogMode(level) }
}

// WithLogger replaces the gorm logger, typically with the zap adapter
func WithLogger(l logger.Interface) Option {
	return func(o *options) { o.logger = l }
}

// WithAutoMigrate creates the schema from the models after connecting.
// Postgres deployments run cmd/migrate instead.
func WithAutoMigrate() Option {
	return func(o *options) { o.autoMigrate = true }
}

// NewDatabase connects, applies the pool settings and pings. An empty
// driver means postgres.
func NewDatabase(cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	o := options{logger: logger.Default.LogMode(logger.Silent)}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Database{driver: cfg.Driver}
	if d.driver == "" {
		d.driver = config.DriverPostgres
	}
	gcfg := &gorm.Config{Logger: o.logger, SkipDefaultTransaction: true}

	var dialector gorm.Dialector
	switch d.driver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN())
		gcfg.PrepareStmt = true
	case config.DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(cfg.SQLitePath))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	var err error
	if d.DB, err = gorm.Open(dialector, gcfg); err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.driver, err)
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil, err
	}
	configurePool(sqlDB, d.driver, cfg)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s database: %w", d.driver, err)
	}
	if o.autoMigrate {
		if err := d.AutoMigrate(); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return d, nil
}

func configurePool(sqlDB *sql.DB, driver string, cfg *config.DatabaseConfig) {
	if driver == config.DriverSQLite {
		// One connection serializes writers and keeps :memory: alive.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
}

// sqliteDSN turns on foreign keys; an empty path means :memory:
func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}

// AutoMigrate creates or updates every table the repositories use
func (d *Database) AutoMigrate() error {
	if err := d.DB.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (d *Database) Driver() string {
	return d.driver
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PingContext checks the connection within ctx's deadline
func (d *Database) PingContext(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns the connection pool statistics
func (d *Database) Stats() (sql.DBStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return sql.DBStats{}, err
	}
	return sqlDB.Stats(), nil
}
