package services

import (
	"testing"
	"time"

	"github.com/justsurfingit/adaudit/internal/database/databasetest"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return databasetest.Open(t)
}

func createAccount(t *testing.T, db *gorm.DB, customerID string) models.Account {
	t.Helper()
	account := models.Account{CustomerID: customerID, Name: "Acme " + customerID, CurrencyCode: "EUR"}
	require.NoError(t, db.Create(&account).Error)
	return account
}

func newModificationService(db *gorm.DB) *ModificationService {
	s := NewModificationService(db, zap.NewNop())
	s.Now = func() time.Time { return fixedNow }
	return s
}
