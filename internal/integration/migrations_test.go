package integration

import (
	"context"
	"testing"

	"github.com/beehold/beehold/internal/db"
	"github.com/stretchr/testify/require"
)

func TestIntegration_MigrationsApplyToFreshPostgres(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	for _, table := range []string{
		"users", "groups", "group_memberships", "group_invites",
		"audit_log", "apiaries", "hives", "inspections",
	} {
		var count int
		err := pool.QueryRow(context.Background(), `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		`, table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "table %s should exist", table)
	}
}

func TestIntegration_MigrationsAreIdempotent(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()

	var before int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&before)
	require.NoError(t, err)
	require.GreaterOrEqual(t, before, 2)

	// newTestDB already ran the migrations once; a second run must be a no-op.
	require.NoError(t, db.RunMigrations(ctx, pool))

	var after int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&after)
	require.NoError(t, err)
	require.Equal(t, before, after)
}
