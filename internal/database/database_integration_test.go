package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benrobertsonio/marcoswift.com/internal/config"
)

// openTestDB connects to TEST_DATABASE_URL and skips the test when it is
// unset. Rows are keyed by a per-run suffix and removed on cleanup.
func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := New(&config.Config{DatabaseURL: url})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrations must be re-runnable")

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	t.Cleanup(func() {
		db.pool.Exec(ctx, "DELETE FROM prologue_subscribers WHERE email LIKE $1", "%+"+suffix+"@example.com")
		db.pool.Exec(ctx, "DELETE FROM rate_limits WHERE ip_address LIKE $1", "%#"+suffix)
		db.Close(ctx)
	})

	return db, suffix
}

func TestPostgres_AddSubscriberIsIdempotent(t *testing.T) {
	db, suffix := openTestDB(t)
	ctx := context.Background()
	email := "reader+" + suffix + "@example.com"

	s, created, err := db.AddSubscriber(ctx, email, "203.0.113.7")
	require.NoError(t, err)
	require.True(t, created)
	assert.NotZero(t, s.ID)
	assert.False(t, s.SubscribedAt.IsZero())

	s, created, err = db.AddSubscriber(ctx, email, "198.51.100.1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, s)

	var source string
	require.NoError(t, db.pool.QueryRow(ctx,
		"SELECT ip_address FROM prologue_subscribers WHERE email = $1", email,
	).Scan(&source))
	assert.Equal(t, "203.0.113.7", source, "a duplicate must not overwrite the first row")
}

func TestPostgres_RateLimitWindow(t *testing.T) {
	db, suffix := openTestDB(t)
	ctx := context.Background()
	source := "203.0.113.7#" + suffix

	count, err := db.CountRecentAttempts(ctx, source, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	a, err := db.RecordAttempt(ctx, source)
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	assert.Equal(t, source, a.SourceAddress)

	count, err = db.CountRecentAttempts(ctx, source, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = db.pool.Exec(ctx,
		"INSERT INTO rate_limits (ip_address, attempted_at) VALUES ($1, NOW() - INTERVAL '2 hours')",
		source,
	)
	require.NoError(t, err)

	count, err = db.CountRecentAttempts(ctx, source, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "attempts outside the window are not counted")

	count, err = db.CountRecentAttempts(ctx, source, 3*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPostgres_PruneAttempts(t *testing.T) {
	db, suffix := openTestDB(t)
	ctx := context.Background()
	source := "198.51.100.9#" + suffix

	_, err := db.pool.Exec(ctx,
		"INSERT INTO rate_limits (ip_address, attempted_at) VALUES ($1, NOW() - INTERVAL '25 hours')",
		source,
	)
	require.NoError(t, err)
	_, err = db.RecordAttempt(ctx, source)
	require.NoError(t, err)

	pruned, err := db.PruneAttempts(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pruned, int64(1))

	count, err := db.CountRecentAttempts(ctx, source, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the fresh attempt survives")
}

func TestPostgres_Ping(t *testing.T) {
	db, _ := openTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}
