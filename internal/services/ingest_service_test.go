package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newIngestService(db *gorm.DB) *IngestService {
	return NewIngestService(db, zap.NewNop())
}

func chunk(dataset string, index, total int, rows any) *dtos.ChunkRequest {
	raw, err := json.Marshal(rows)
	if err != nil {
		panic(err)
	}
	return &dtos.ChunkRequest{Dataset: dataset, ChunkIndex: &index, TotalChunks: total, Rows: raw}
}

func TestNormalizeCustomerID(t *testing.T) {
	got, err := NormalizeCustomerID("1234567890")
	require.NoError(t, err)
	require.Equal(t, "123-456-7890", got)

	got, err = NormalizeCustomerID(" 123-456-7890 ")
	require.NoError(t, err)
	require.Equal(t, "123-456-7890", got)

	_, err = NormalizeCustomerID("12-34")
	require.ErrorIs(t, err, ErrValidation)
}

func TestStartRunUpsertsAccount(t *testing.T) {
	db := newTestDB(t)
	svc := newIngestService(db)

	first, err := svc.StartRun(&dtos.RunStartRequest{CustomerID: "1234567890", AccountName: "Shoes", CurrencyCode: "eur"})
	require.NoError(t, err)
	require.Equal(t, models.RunReceiving, first.Status)

	second, err := svc.StartRun(&dtos.RunStartRequest{CustomerID: "123-456-7890"})
	require.NoError(t, err)
	require.Equal(t, first.AccountID, second.AccountID)
	require.NotEqual(t, first.ID, second.ID)

	var account models.Account
	require.NoError(t, db.First(&account, first.AccountID).Error)
	require.Equal(t, "Shoes", account.Name)
	require.Equal(t, "EUR", account.CurrencyCode)
}

func TestAppendChunkValidatesAndReplaces(t *testing.T) {
	db := newTestDB(t)
	svc := newIngestService(db)
	run, err := svc.StartRun(&dtos.RunStartRequest{CustomerID: "1234567890"})
	require.NoError(t, err)

	_, err = svc.AppendChunk("missing", chunk(DatasetKeywords, 0, 1, []any{}))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.AppendChunk(run.ID, chunk("ads", 0, 1, []any{}))
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.AppendChunk(run.ID, chunk(DatasetKeywords, 2, 2, []any{}))
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.AppendChunk(run.ID, chunk(DatasetKeywords, 0, 2, map[string]any{"not": "array"}))
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.AppendChunk(run.ID, chunk(DatasetKeywords, 0, 2, []map[string]any{{"id": "1", "text": "a"}}))
	require.NoError(t, err)

	_, err = svc.AppendChunk(run.ID, chunk(DatasetKeywords, 1, 3, []any{}))
	require.ErrorIs(t, err, ErrConflict)

	// Retrying the same chunk replaces it rather than duplicating it.
	stored, err := svc.AppendChunk(run.ID, chunk(DatasetKeywords, 0, 2, []map[string]any{{"id": "1", "text": "a"}, {"id": "2", "text": "b"}}))
	require.NoError(t, err)
	require.Equal(t, 2, stored.RowCount)

	status, err := svc.GetRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, "123-456-7890", status.CustomerID)
	require.Len(t, status.Datasets, 1)
	require.Equal(t, dtos.DatasetProgress{Dataset: DatasetKeywords, Received: 1, Total: 2, RowCount: 2}, status.Datasets[0])
}

func TestCompleteRunRequiresEveryChunk(t *testing.T) {
	db := newTestDB(t)
	svc := newIngestService(db)
	run, err := svc.StartRun(&dtos.RunStartRequest{CustomerID: "1234567890"})
	require.NoError(t, err)

	_, err = svc.CompleteRun(context.Background(), run.ID)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.AppendChunk(run.ID, chunk(DatasetCampaigns, 1, 3, []any{}))
	require.NoError(t, err)

	_, err = svc.CompleteRun(context.Background(), run.ID)
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorContains(t, err, "campaigns missing chunks [0 2] of 3")
}

func TestCompleteRunReplacesSnapshot(t *testing.T) {
	db := newTestDB(t)
	svc := newIngestService(db)

	var triggered uint
	svc.OnComplete = func(_ context.Context, accountID uint) { triggered = accountID }

	run, err := svc.StartRun(&dtos.RunStartRequest{CustomerID: "1234567890"})
	require.NoError(t, err)

	// Left over from an earlier run; keywords get replaced, search terms are not part of this run.
	require.NoError(t, db.Create(&models.Keyword{AccountID: run.AccountID, ExternalID: "old", Text: "old"}).Error)
	require.NoError(t, db.Create(&models.SearchTerm{AccountID: run.AccountID, Term: "kept"}).Error)

	_, err = svc.AppendChunk(run.ID, chunk(DatasetKeywords, 1, 2, []dtos.KeywordRow{
		{ID: "k2", AdGroupID: "ag1", CampaignID: "c1", Text: "red shoes", MatchType: "EXACT", Status: "ENABLED"},
	}))
	require.NoError(t, err)
	_, err = svc.AppendChunk(run.ID, chunk(DatasetKeywords, 0, 2, []dtos.KeywordRow{
		{ID: "k1", AdGroupID: "ag1", CampaignID: "c1", Text: "shoes", MatchType: "BROAD", Status: "ENABLED",
			Metrics: models.Metrics{Clicks: 12, CostMicros: 3400000}},
	}))
	require.NoError(t, err)
	_, err = svc.AppendChunk(run.ID, chunk(DatasetCampaigns, 0, 1, []dtos.CampaignRow{
		{ID: "c1", Name: "Search", Status: "ENABLED", BudgetMicros: 10000000},
	}))
	require.NoError(t, err)

	done, err := svc.CompleteRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.Equal(t, run.AccountID, triggered)

	var keywords []models.Keyword
	require.NoError(t, db.Where("account_id = ?", run.AccountID).Order("external_id").Find(&keywords).Error)
	require.Len(t, keywords, 2)
	require.Equal(t, "k1", keywords[0].ExternalID)
	require.Equal(t, "broad", keywords[0].MatchType)
	require.Equal(t, "enabled", keywords[0].Status)
	require.Equal(t, int64(3400000), keywords[0].CostMicros)

	var terms int64
	require.NoError(t, db.Model(&models.SearchTerm{}).Where("account_id = ?", run.AccountID).Count(&terms).Error)
	require.Equal(t, int64(1), terms)

	var chunks int64
	require.NoError(t, db.Model(&models.DatasetChunk{}).Where("run_id = ?", run.ID).Count(&chunks).Error)
	require.Zero(t, chunks)

	var account models.Account
	require.NoError(t, db.First(&account, run.AccountID).Error)
	require.NotNil(t, account.LastIngestedAt)

	_, err = svc.AppendChunk(run.ID, chunk(DatasetKeywords, 0, 1, []any{}))
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.CompleteRun(context.Background(), run.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteRunFailsOnBadRows(t *testing.T) {
	db := newTestDB(t)
	svc := newIngestService(db)
	run, err := svc.StartRun(&dtos.RunStartRequest{CustomerID: "1234567890"})
	require.NoError(t, err)

	_, err = svc.AppendChunk(run.ID, chunk(DatasetKeywords, 0, 1, []map[string]any{{"id": "k1"}}))
	require.NoError(t, err)

	_, err = svc.CompleteRun(context.Background(), run.ID)
	require.ErrorIs(t, err, ErrValidation)

	status, err := svc.GetRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunFailed, status.Status)
	require.Contains(t, status.Error, "keywords row 0")
}

func TestExpireStaleRuns(t *testing.T) {
	db := newTestDB(t)
	svc := newIngestService(db)
	run, err := svc.StartRun(&dtos.RunStartRequest{CustomerID: "1234567890"})
	require.NoError(t, err)

	expired, err := svc.ExpireStaleRuns(time.Hour)
	require.NoError(t, err)
	require.Zero(t, expired)

	svc.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	expired, err = svc.ExpireStaleRuns(time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	status, err := svc.GetRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunFailed, status.Status)
}
