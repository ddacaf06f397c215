// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/aquamind/go-tank-backend/internal/config"
	"github.com/aquamind/go-tank-backend/internal/domain"
)

// Open opens the storage backend selected by cfg. The backend is fixed for
// the lifetime of the process: "sqlite" is the durable file-backed store,
// "memory" is an explicitly ephemeral store whose contents are lost on
// restart. There is no runtime fallback from one to the other.
func Open(cfg config.Config) (*gorm.DB, error) {
	switch cfg.DBBackend {
	case config.BackendMemory:
		return OpenMemory()
	default:
		return OpenSQLite(cfg.DBPath)
	}
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite
	// "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	tune(db)
	return db, nil
}

// OpenMemory opens a process-shared in-memory SQLite database. All
// connections in the pool see the same data; everything is gone when the
// process exits.
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:aquamind_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	tune(db)
	return db, nil
}

func tune(db *gorm.DB) {
	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
}

// EnableTracing installs the GORM OpenTelemetry plugin so queries appear as
// spans under the request trace. Metrics are disabled; the HTTP layer
// already exports Prometheus metrics.
func EnableTracing(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// AutoMigrate creates or updates the schema for all persisted models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Tank{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.AuditLog{},
		&domain.Idempotency{},
	)
}
