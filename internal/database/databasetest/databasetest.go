// Package databasetest opens throwaway databases for tests.
package databasetest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/justsurfingit/adaudit/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open returns a migrated in-memory sqlite database private to the test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open("sqlite", dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
