package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMaintenanceRunOnce(t *testing.T) {
	db := newTestDB(t)
	account := createAccount(t, db, "123-456-7890")
	mods := newModificationService(db)
	ingest := newIngestService(db)
	auth := NewAuthService(db, zap.NewNop(), time.Hour, nil)
	auth.Now = func() time.Time { return fixedNow }

	mod, err := mods.Create(pauseKeyword(account.ID, "kw-1"), "ana")
	require.NoError(t, err)
	_, err = mods.Approve(mod.ID, "bob", "")
	require.NoError(t, err)
	_, err = mods.ClaimForApply(account.CustomerID, 10)
	require.NoError(t, err)

	_, err = ingest.StartRun(&dtos.RunStartRequest{CustomerID: "9998887777"})
	require.NoError(t, err)

	_, err = auth.CreateUser("ana@example.com", "", "password1", RoleViewer)
	require.NoError(t, err)
	_, _, err = auth.Login("ana@example.com", "password1")
	require.NoError(t, err)

	later := fixedNow.Add(2 * time.Hour)
	mods.Now = func() time.Time { return later }
	ingest.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	auth.Now = func() time.Time { return later }

	svc := NewMaintenanceService(mods, ingest, auth, zap.NewNop())
	svc.ProcessingTimeout = 30 * time.Minute
	svc.RunTTL = time.Hour

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Reaped)
	require.Equal(t, 1, report.ExpiredRuns)
	require.Equal(t, int64(1), report.PurgedSessions)

	got, err := mods.Get(mod.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
}

func TestMaintenanceRetryBacksOff(t *testing.T) {
	svc := &MaintenanceService{Log: zap.NewNop()}

	calls := 0
	err := svc.retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	boom := errors.New("boom")
	err = svc.retry(context.Background(), 2, time.Millisecond, func() error { return boom })
	require.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svc.retry(ctx, 3, time.Hour, func() error { return boom })
	require.ErrorIs(t, err, context.Canceled)
}

func TestMaintenanceWatcherStopsWithContext(t *testing.T) {
	db := newTestDB(t)
	svc := NewMaintenanceService(newModificationService(db), nil, nil, zap.NewNop())
	svc.ProcessingTimeout = time.Minute
	svc.Interval = 10 * time.Millisecond
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	svc.StartWatcher(ctx)
	time.Sleep(35 * time.Millisecond)
	cancel()
}
