package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	// DriverSQLite stores data in a local SQLite file.
	DriverSQLite = "sqlite"
	// DriverPostgres stores data in PostgreSQL.
	DriverPostgres = "postgres"
)

var (
	errMissingPath      = errors.New("database path is required")
	errMissingDSN       = errors.New("database dsn is required")
	errUnsupportedDrive = errors.New("unsupported database driver")
)

// Config selects and locates the backing database.
type Config struct {
	Driver string
	Path   string
	DSN    string
}

// Open establishes the configured connection and performs schema migrations.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logging.NewGormLogger(logger, 0),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if normalizeDriver(cfg.Driver) == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", normalizeDriver(cfg.Driver)))
	return db, nil
}

// Migrate creates the schema and applies pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&entries.Entry{}, &users.Identity{}, &migrationRecord{}); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

// HasEntryDayIndex reports whether the composite index behind indexed day and
// week queries exists.
func HasEntryDayIndex(db *gorm.DB) bool {
	if db == nil {
		return false
	}
	return db.Migrator().HasIndex(&entries.Entry{}, entries.DayIndexName)
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch normalizeDriver(cfg.Driver) {
	case DriverSQLite:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return nil, errMissingPath
		}
		return sqlite.Open(path), nil
	case DriverPostgres:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return nil, errMissingDSN
		}
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedDrive, cfg.Driver)
	}
}

func normalizeDriver(driver string) string {
	normalized := strings.ToLower(strings.TrimSpace(driver))
	if normalized == "" {
		return DriverSQLite
	}
	if normalized == "postgresql" {
		return DriverPostgres
	}
	return normalized
}
