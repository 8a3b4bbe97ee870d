// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for the
// supported drivers (pure-Go SQLite, PostgreSQL, MySQL) and schema
// migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/worldfriends-backend/internal/domain"
)

// Supported values for the driver argument of Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Open connects to the database selected by driver, installs the
// OpenTelemetry tracing plugin, and configures the connection pool.
func Open(driver, dsn string) (*gorm.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" || driver == DriverSQLite {
		return OpenSQLite(dsn)
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB driver %q", driver)
	}

	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, err
	}
	return finish(db, 25)
}

// sqlitePragmas tune SQLite for one writer and many readers. busy_timeout
// makes concurrent writers queue instead of failing with SQLITE_BUSY.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// OpenSQLite opens (or creates) the database file at path. The parent
// directory must exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("sqlite path %q: %w", path, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}
	for _, p := range sqlitePragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return finish(db, 10)
}

// finish installs tracing and sizes the connection pool.
func finish(db *gorm.DB, maxOpen int) (*gorm.DB, error) {
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(min(maxOpen, 10))
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc:        Now,
	}
}

// AutoMigrate creates or updates every table used by the application.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.UserInformation{},
		&domain.Profile{},
		&domain.Block{},
		&domain.Friendship{},
		&domain.Conversation{},
		&domain.Group{},
		&domain.GroupMember{},
		&domain.Message{},
		&domain.Post{},
		&domain.Collection{},
		&domain.Comment{},
		&domain.Reaction{},
		&domain.Letter{},
		&domain.Notification{},
		&domain.Idempotency{},
	)
}

// Now is the clock used for every timestamp the repository writes. Values
// are UTC and truncated to microseconds so they survive a round trip
// through PostgreSQL unchanged and can be compared against cursor keys.
var Now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
