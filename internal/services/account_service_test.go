package services

import (
	"testing"

	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/stretchr/testify/require"
)

func TestAccountListSearches(t *testing.T) {
	db := newTestDB(t)
	createAccount(t, db, "123-456-7890")
	createAccount(t, db, "999-888-7777")
	svc := NewAccountService(db)

	all, total, page, err := svc.List(dtos.AccountFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, int64(2), total)
	require.Equal(t, defaultPageLimit, page.Limit)

	byID, _, _, err := svc.List(dtos.AccountFilter{Query: "9998887777"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	require.Equal(t, "999-888-7777", byID[0].CustomerID)

	byName, _, _, err := svc.List(dtos.AccountFilter{Query: "ACME 123"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	require.Equal(t, "123-456-7890", byName[0].CustomerID)

	for _, fragment := range []string{"4567", "456-7"} {
		matched, total, _, err := svc.List(dtos.AccountFilter{Query: fragment})
		require.NoError(t, err)
		require.Equal(t, int64(1), total, fragment)
		require.Equal(t, "123-456-7890", matched[0].CustomerID)
	}
}

func TestAccountGetCountsSnapshot(t *testing.T) {
	db := newTestDB(t)
	account := seedSnapshot(t, db)
	_, err := newModificationService(db).Create(&dtos.ModificationCreationRequest{
		AccountID: account.ID, Action: models.ActionPauseKeyword, EntityExternalID: "k1",
	}, "ana@example.com")
	require.NoError(t, err)

	svc := NewAccountService(db)
	detail, err := svc.Get(account.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), detail.Campaigns)
	require.Equal(t, int64(2), detail.Keywords)
	require.Equal(t, int64(1), detail.PendingModifications)
	require.Equal(t, int64(100_000_000), detail.CostMicros)
	require.Equal(t, "100.00 EUR", detail.Cost)

	_, err = svc.Get(account.ID + 100)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAccountKeywordsOrderedByCost(t *testing.T) {
	db := newTestDB(t)
	account := seedSnapshot(t, db)
	svc := NewAccountService(db)

	keywords, total, _, err := svc.Keywords(account.ID, dtos.EntityFilter{CampaignID: "c1", Status: "ENABLED"})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Equal(t, "k1", keywords[0].ExternalID)

	none, total, _, err := svc.Keywords(account.ID, dtos.EntityFilter{CampaignID: "other"})
	require.NoError(t, err)
	require.Empty(t, none)
	require.Zero(t, total)

	_, _, _, err = svc.SearchTerms(account.ID+100, dtos.EntityFilter{})
	require.ErrorIs(t, err, ErrNotFound)
}
