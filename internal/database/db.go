package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/justsurfingit/adaudit/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects with the configured driver ("postgres" or "sqlite"). gorm logs through log.
func Open(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newZapLogger(log, logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if driver == "sqlite" {
		// sqlite allows a single writer; serialise through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("getting sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Connect opens the database and runs migrations.
func Connect(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := Open(driver, dsn, log)
	if err != nil {
		return nil, err
	}
	log.Info("database connection established", zap.String("driver", driver))

	log.Info("running migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
