package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/stretchr/testify/require"
)

func TestExportRecommendationsCSV(t *testing.T) {
	db := newTestDB(t)
	account := seedSnapshot(t, db)
	res, err := newAnalysisService(db, nil).Analyze(context.Background(), account.ID, false)
	require.NoError(t, err)
	require.NotZero(t, res.Recommendations)

	var buf bytes.Buffer
	err = NewExportService(db).Recommendations(&buf, dtos.RecommendationFilter{AccountID: account.ID})
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, recommendationColumns, records[0])
	require.Len(t, records, res.Recommendations+1)
	require.Equal(t, res.AnalysisID, records[1][2])
}

func TestExportModificationsCSV(t *testing.T) {
	db := newTestDB(t)
	account := createAccount(t, db, "123-456-7890")
	mods := newModificationService(db)
	_, err := mods.Create(&dtos.ModificationCreationRequest{
		AccountID: account.ID, Action: models.ActionUpdateKeywordBid, EntityExternalID: "k1",
		Params: map[string]any{"cpc_bid_micros": 1_200_000},
	}, "ana@example.com")
	require.NoError(t, err)

	svc := NewExportService(db)
	var buf bytes.Buffer
	require.NoError(t, svc.Modifications(&buf, dtos.ModificationFilter{AccountID: account.ID}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	row := records[1]
	require.Equal(t, models.ActionUpdateKeywordBid, row[3])
	require.Equal(t, `{"cpc_bid_micros":1200000}`, row[6])
	require.Equal(t, models.StatusPending, row[7])
	require.Equal(t, "0", row[14])

	buf.Reset()
	require.ErrorIs(t, svc.Modifications(&buf, dtos.ModificationFilter{Status: "bogus"}), ErrValidation)
}

func TestExportNeutralisesFormulaCells(t *testing.T) {
	db := newTestDB(t)
	account := createAccount(t, db, "123-456-7890")
	require.NoError(t, db.Create(&models.Recommendation{
		AccountID: account.ID, Source: models.SourceAI, Severity: models.SeverityLow, EntityType: "account",
		Title: `=HYPERLINK("http://evil.example","x")`, Description: "@SUM(A1)", Status: models.RecommendationOpen,
	}).Error)

	var buf bytes.Buffer
	require.NoError(t, NewExportService(db).Recommendations(&buf, dtos.RecommendationFilter{AccountID: account.ID}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, `'=HYPERLINK("http://evil.example","x")`, records[1][8])
	require.Equal(t, "'@SUM(A1)", records[1][9])
	require.Equal(t, models.SourceAI, records[1][3])
}
