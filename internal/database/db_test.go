package database_test

import (
	"testing"

	"github.com/justsurfingit/adaudit/internal/database"
	"github.com/justsurfingit/adaudit/internal/database/databasetest"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := database.Open("mysql", "dsn", zap.NewNop())
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestMigrateCreatesTables(t *testing.T) {
	db := databasetest.Open(t)

	for _, model := range models.All() {
		require.True(t, db.Migrator().HasTable(model), "%T", model)
	}
}

func TestChunkKeyIsUnique(t *testing.T) {
	db := databasetest.Open(t)

	chunk := models.DatasetChunk{RunID: "run-1", Dataset: "keywords", ChunkIndex: 0, TotalChunks: 2}
	require.NoError(t, db.Create(&chunk).Error)

	dup := models.DatasetChunk{RunID: "run-1", Dataset: "keywords", ChunkIndex: 0, TotalChunks: 2}
	require.Error(t, db.Create(&dup).Error)
}

func TestQueryErrorsAreLoggedThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db, err := database.Open("sqlite", "file::memory:", zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	require.Error(t, db.Exec("SELECT * FROM missing_table").Error)

	failed := logs.FilterMessage("query failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, "gorm", failed[0].LoggerName)
	require.Contains(t, failed[0].ContextMap()["sql"], "missing_table")
}

func TestRecordNotFoundIsNotLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db, err := database.Open("sqlite", "file::memory:", zap.New(core))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	var user models.User
	require.Error(t, db.First(&user, 42).Error)
	require.Zero(t, logs.FilterMessage("query failed").Len())
}
