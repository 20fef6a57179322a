package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when an email/password pair does not
	// match a stored user.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrRefreshTokenInvalid is returned for unknown, revoked or expired
	// refresh tokens.
	ErrRefreshTokenInvalid = errors.New("invalid refresh token")
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type RefreshToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	RevokedAt sql.NullTime
}

// Queries wraps the account and refresh-token statements.
type Queries struct {
	db  *sql.DB
	now func() time.Time
}

func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db, now: Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashToken returns the stored form of a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateUser stores a new user with a bcrypt password hash.
func (q *Queries) CreateUser(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, fmt.Errorf("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    q.now(),
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// EnsureUser creates the user unless one with the same email exists.
func (q *Queries) EnsureUser(ctx context.Context, email, password string) (User, error) {
	user, err := q.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	return q.CreateUser(ctx, email, password)
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return q.getUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, normalizeEmail(email))
}

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	return q.getUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (q *Queries) getUser(ctx context.Context, query string, arg string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// Authenticate checks an email/password pair.
func (q *Queries) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := q.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// CreateRefreshToken records token (stored hashed) for userID.
func (q *Queries) CreateRefreshToken(ctx context.Context, userID, token string, ttl time.Duration) (RefreshToken, error) {
	rt := RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: q.now().Add(ttl),
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at) VALUES (?, ?, ?, ?)`,
		rt.ID, rt.UserID, HashToken(token), rt.ExpiresAt,
	)
	if err != nil {
		return RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}
	return rt, nil
}

// LookupRefreshToken returns the live record for token.
func (q *Queries) LookupRefreshToken(ctx context.Context, token string) (RefreshToken, error) {
	var rt RefreshToken
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ?`,
		HashToken(token),
	).Scan(&rt.ID, &rt.UserID, &rt.ExpiresAt, &rt.RevokedAt)
	if err == sql.ErrNoRows {
		return RefreshToken{}, ErrRefreshTokenInvalid
	}
	if err != nil {
		return RefreshToken{}, fmt.Errorf("query refresh token: %w", err)
	}
	if rt.RevokedAt.Valid || !q.now().Before(rt.ExpiresAt) {
		return RefreshToken{}, ErrRefreshTokenInvalid
	}
	return rt, nil
}

// RevokeRefreshToken marks token revoked. Unknown tokens are ignored.
func (q *Queries) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		q.now(), HashToken(token),
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// DeleteExpiredRefreshTokens prunes expired and revoked tokens.
func (q *Queries) DeleteExpiredRefreshTokens(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ? OR revoked_at IS NOT NULL`,
		q.now(),
	)
	return err
}
