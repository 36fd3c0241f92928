package gormstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres      = "postgres"
	DriverSQLite        = "sqlite"
	defaultSQLiteFile   = "keyshop.db"
	sqliteBusyTimeoutMS = 5000
)

// Database bundles an opened gorm handle with its driver name.
type Database struct {
	DB     *gorm.DB
	Driver string
}

// Close releases the underlying connection pool.
func (database *Database) Close() error {
	sqlDB, err := database.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Open connects to a postgres:// URL, a sqlite:// URL or a bare SQLite path.
// SQLite databases are limited to one connection so transactions never interleave.
func Open(ctx context.Context, dsn string, logger gormlogger.Interface) (*Database, error) {
	driver, sqlitePath, err := ResolveDriver(dsn)
	if err != nil {
		return nil, err
	}
	cfg := &gorm.Config{}
	if logger != nil {
		cfg.Logger = logger
	}
	var db *gorm.DB
	switch driver {
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(sqliteDSN(sqlitePath)), cfg)
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &Database{DB: db, Driver: driver}, nil
}

// AutoMigrate creates the schema on SQLite. Postgres schemas are owned by the migration package.
func (database *Database) AutoMigrate() error {
	if database.Driver != DriverSQLite {
		return nil
	}
	if err := database.DB.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// ResolveDriver returns the driver name and, for SQLite, the file path.
func ResolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = defaultSQLiteFile
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return DriverSQLite, sqlitePath, err
	}
	if strings.TrimSpace(dsn) == "" {
		return "", "", fmt.Errorf("database url is required")
	}
	sqlitePath, err := normalizeSQLitePath(dsn)
	return DriverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	relative := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(relative), 0o755); err != nil {
		return "", err
	}
	return relative, nil
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, sqliteBusyTimeoutMS)
}
