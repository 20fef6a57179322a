package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenServer(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenServer_MigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.db")

	db, err := OpenServer(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenServer(path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	require.Zero(t, n)
}

func TestQueries_AuthenticateUser(t *testing.T) {
	db := openTestDB(t)
	q := NewQueries(db.DB)
	ctx := context.Background()

	created, err := q.CreateUser(ctx, " Demo@Example.com ", "pw")
	require.NoError(t, err)
	require.Equal(t, "demo@example.com", created.Email)

	user, err := q.Authenticate(ctx, "demo@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)

	_, err = q.Authenticate(ctx, "demo@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = q.Authenticate(ctx, "nobody@example.com", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = q.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestQueries_EnsureUserIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	q := NewQueries(db.DB)
	ctx := context.Background()

	first, err := q.EnsureUser(ctx, "a@b.com", "pw")
	require.NoError(t, err)
	second, err := q.EnsureUser(ctx, "a@b.com", "other")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestQueries_RefreshTokenLifecycle(t *testing.T) {
	db := openTestDB(t)
	q := NewQueries(db.DB)
	ctx := context.Background()

	user, err := q.CreateUser(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	_, err = q.CreateRefreshToken(ctx, user.ID, "refresh1", time.Hour)
	require.NoError(t, err)

	rt, err := q.LookupRefreshToken(ctx, "refresh1")
	require.NoError(t, err)
	require.Equal(t, user.ID, rt.UserID)

	_, err = q.LookupRefreshToken(ctx, "unknown")
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	require.NoError(t, q.RevokeRefreshToken(ctx, "refresh1"))
	_, err = q.LookupRefreshToken(ctx, "refresh1")
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	require.NoError(t, q.DeleteExpiredRefreshTokens(ctx))
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM refresh_tokens`).Scan(&n))
	require.Zero(t, n)
}

func TestQueries_RefreshTokenExpires(t *testing.T) {
	db := openTestDB(t)
	q := NewQueries(db.DB)
	ctx := context.Background()

	user, err := q.CreateUser(ctx, "a@b.com", "pw")
	require.NoError(t, err)
	_, err = q.CreateRefreshToken(ctx, user.ID, "short", time.Minute)
	require.NoError(t, err)

	q.now = func() time.Time { return Now().Add(2 * time.Minute) }
	_, err = q.LookupRefreshToken(ctx, "short")
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)
}
