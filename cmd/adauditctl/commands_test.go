package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) {
	t.Setenv("ADAUDIT_DATABASE_DRIVER", "sqlite")
	t.Setenv("ADAUDIT_DATABASE_DSN", filepath.Join(t.TempDir(), "adaudit.db"))
	t.Setenv("ADAUDIT_LOG_LEVEL", "error")
}

func TestMigrateAndCreateUser(t *testing.T) {
	useSQLite(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "schema is up to date")

	out, err = execute(t, "user", "create", "--email", "Ana@Acme.io", "--password", "password1", "--role", "admin")
	require.NoError(t, err)
	require.Contains(t, out, "created admin user ana@acme.io")

	_, err = execute(t, "user", "create", "--email", "ana@acme.io", "--password", "password1")
	require.ErrorContains(t, err, "already exists")

	_, err = execute(t, "user", "create", "--password", "password1")
	require.Error(t, err, "--email is required")
}

func TestReapOnEmptyDatabase(t *testing.T) {
	useSQLite(t)

	out, err := execute(t, "reap")
	require.NoError(t, err)
	require.Contains(t, out, "reaped 0 modifications, expired 0 runs, purged 0 sessions")
}
