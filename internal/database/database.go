package database

import (
	"fmt"
	"strings"
	"time"

	"finlink/internal/logger"
	"finlink/internal/models"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sqlitePrefix = "sqlite://"

// Manager handles database operations
type Manager struct {
	db            *gorm.DB
	dsn           string
	migrationsDir string
	sqlite        bool
}

// NewManager opens a connection for the given DSN. A "sqlite://<path>" DSN
// selects the embedded SQLite driver for local development; anything else is
// treated as a Postgres URL.
func NewManager(dsn, migrationsDir string) (*Manager, error) {
	var (
		dialector gorm.Dialector
		isSQLite  bool
	)
	if strings.HasPrefix(dsn, sqlitePrefix) {
		isSQLite = true
		dialector = sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix) + "?_foreign_keys=on")
	} else {
		dialector = postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true, // Required for Supabase Supavisor; harmless for direct connections
		})
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	if isSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if migrationsDir == "" {
		migrationsDir = "migrations"
	}
	return &Manager{db: db, dsn: dsn, migrationsDir: migrationsDir, sqlite: isSQLite}, nil
}

// RunMigrations applies pending SQL migrations. SQLite databases are
// migrated from the gorm models instead.
func (m *Manager) RunMigrations() error {
	log := logger.Get()
	log.Info("Running database migrations...")

	if m.sqlite {
		if err := m.db.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto migration failed: %w", err)
		}
		log.Info("SQLite schema migrated from models")
		return nil
	}

	mig, err := NewMigrator(m.dsn, m.migrationsDir)
	if err != nil {
		return err
	}
	defer CloseMigrator(mig)

	if err := mig.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("Database migrations completed successfully")
	return nil
}

// NewMigrator builds a golang-migrate instance reading SQL files from dir.
func NewMigrator(dsn, dir string) (*migrate.Migrate, error) {
	mig, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mig, nil
}

// CloseMigrator releases both migrate handles, logging close errors.
func CloseMigrator(mig *migrate.Migrate) {
	srcErr, dbErr := mig.Close()
	if srcErr != nil {
		logger.Get().Warnf("migrate source close error: %v", srcErr)
	}
	if dbErr != nil {
		logger.Get().Warnf("migrate database close error: %v", dbErr)
	}
}

// DB returns the underlying GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Close closes the underlying connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
