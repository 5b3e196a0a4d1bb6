package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunMigrationsWithDBKeepsConnectionOpen(t *testing.T) {
	t.Parallel()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrations, err := filepath.Abs("migrations")
	require.NoError(t, err)
	require.NoError(t, RunMigrationsWithDB(db, migrations))

	// The caller's connection must survive the migration pass.
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM corrections`).Scan(&n))
	require.Zero(t, n)

	// Re-running with everything applied is a no-op, and the connection
	// stays usable afterwards too.
	require.NoError(t, RunMigrationsWithDB(db, migrations))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n))
}

func TestRunMigrationsMissingSource(t *testing.T) {
	t.Parallel()

	err := RunMigrations(filepath.Join(t.TempDir(), "test.db"), filepath.Join(t.TempDir(), "no-migrations"))
	require.Error(t, err)
}
