package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	sql  string
	args []any
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int:
			*p = r.values[i].(int)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeQuerier struct {
	calls   []call
	execTag pgconn.CommandTag
	execErr error
	row     fakeRow
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql: sql, args: args})
	return f.execTag, f.execErr
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.calls = append(f.calls, call{sql: sql, args: args})
	return f.row
}

func TestMigrate(t *testing.T) {
	t.Run("runs every statement idempotently", func(t *testing.T) {
		q := &fakeQuerier{}
		db := &DB{q: q}

		require.NoError(t, db.Migrate(context.Background()))
		require.Len(t, q.calls, 4)
		for _, c := range q.calls {
			assert.Contains(t, c.sql, "IF NOT EXISTS")
		}
		assert.Contains(t, q.calls[1].sql, "ADD COLUMN IF NOT EXISTS ip_address")
	})

	t.Run("stops on first failure", func(t *testing.T) {
		q := &fakeQuerier{execErr: errors.New("permission denied")}
		db := &DB{q: q}

		err := db.Migrate(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission denied")
		assert.Len(t, q.calls, 1)
	})
}

func TestCountRecentAttempts(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{values: []any{3}}}
	db := &DB{q: q}

	count, err := db.CountRecentAttempts(context.Background(), "203.0.113.7", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.Len(t, q.calls, 1)
	assert.Equal(t, []any{"203.0.113.7", float64(3600)}, q.calls[0].args)
}

func TestCountRecentAttempts_Error(t *testing.T) {
	db := &DB{q: &fakeQuerier{row: fakeRow{err: errors.New("connection reset")}}}

	_, err := db.CountRecentAttempts(context.Background(), "203.0.113.7", time.Hour)
	assert.ErrorContains(t, err, "connection reset")
}

func TestRecordAttempt(t *testing.T) {
	at := time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC)
	q := &fakeQuerier{row: fakeRow{values: []any{9, at}}}
	db := &DB{q: q}

	a, err := db.RecordAttempt(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, 9, a.ID)
	assert.Equal(t, "unknown", a.SourceAddress)
	assert.Equal(t, at, a.AttemptedAt)
	require.Len(t, q.calls, 1)
	assert.True(t, strings.HasPrefix(q.calls[0].sql, "INSERT INTO rate_limits"))
	assert.Equal(t, []any{"unknown"}, q.calls[0].args)
}

func TestPruneAttempts(t *testing.T) {
	q := &fakeQuerier{execTag: pgconn.NewCommandTag("DELETE 7")}
	db := &DB{q: q}

	n, err := db.PruneAttempts(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, []any{float64(86400)}, q.calls[0].args)
}

func TestAddSubscriber(t *testing.T) {
	t.Run("new subscriber", func(t *testing.T) {
		at := time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC)
		q := &fakeQuerier{row: fakeRow{values: []any{42, at}}}
		db := &DB{q: q}

		s, created, err := db.AddSubscriber(context.Background(), "reader@example.com", "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 42, s.ID)
		assert.Equal(t, "reader@example.com", s.Email)
		assert.Equal(t, "203.0.113.7", s.SourceAddress)
		assert.Equal(t, at, s.SubscribedAt)
		assert.Contains(t, q.calls[0].sql, "ON CONFLICT (email) DO NOTHING")
	})

	t.Run("duplicate is not an error", func(t *testing.T) {
		db := &DB{q: &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}}

		s, created, err := db.AddSubscriber(context.Background(), "reader@example.com", "203.0.113.7")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Nil(t, s)
	})

	t.Run("storage failure", func(t *testing.T) {
		db := &DB{q: &fakeQuerier{row: fakeRow{err: errors.New("disk full")}}}

		_, created, err := db.AddSubscriber(context.Background(), "reader@example.com", "203.0.113.7")
		assert.ErrorContains(t, err, "disk full")
		assert.False(t, created)
	})
}
