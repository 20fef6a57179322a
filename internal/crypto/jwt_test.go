package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTManager_RoundTrip(t *testing.T) {
	t.Parallel()

	m, err := NewJWTManager(testSecret, time.Minute)
	require.NoError(t, err)

	token, err := m.CreateToken("user-1", "a@b.com")
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "a@b.com", claims.Email)
}

func TestJWTManager_RejectsExpiredAndForeign(t *testing.T) {
	t.Parallel()

	m, err := NewJWTManager(testSecret, time.Minute)
	require.NoError(t, err)
	token, err := m.CreateToken("user-1", "a@b.com")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.VerifyToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewJWTManager("ffffffffffffffffffffffffffffffff", time.Minute)
	require.NoError(t, err)
	foreign, err := other.CreateToken("user-1", "a@b.com")
	require.NoError(t, err)

	fresh, err := NewJWTManager(testSecret, time.Minute)
	require.NoError(t, err)
	_, err = fresh.VerifyToken(foreign)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = fresh.VerifyToken("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTManager_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewJWTManager("short", time.Minute)
	require.Error(t, err)
	_, err = NewJWTManager(testSecret, 0)
	require.Error(t, err)
}

func TestNewRefreshToken(t *testing.T) {
	t.Parallel()

	a, err := NewRefreshToken()
	require.NoError(t, err)
	b, err := NewRefreshToken()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, 43)

	_, err = RandBytes(nil)
	require.Error(t, err)
}
