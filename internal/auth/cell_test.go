package auth

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bhandras/starter/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// memoryCookies records cookie writes the way document.cookie would: the
// latest write for a name wins, and an expired write removes it.
type memoryCookies struct {
	mu      sync.Mutex
	writes  []*http.Cookie
	current map[string]*http.Cookie
}

func newMemoryCookies() *memoryCookies {
	return &memoryCookies{current: make(map[string]*http.Cookie)}
}

func (m *memoryCookies) SetCookie(c *http.Cookie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, c)
	if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
		delete(m.current, c.Name)
		return
	}
	m.current[c.Name] = c
}

func (m *memoryCookies) get(name string) (*http.Cookie, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.current[name]
	return c, ok
}

func (m *memoryCookies) last() *http.Cookie {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[len(m.writes)-1]
}

type legacyMap map[string]string

func (l legacyMap) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := l[key]
	return v, ok, nil
}

type failingLegacy struct{}

func (failingLegacy) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func strPtr(s string) *string { return &s }

func TestCell_InitialStateIsEmpty(t *testing.T) {
	t.Parallel()

	c := NewCell(nil, nil)
	require.Nil(t, c.User())
	require.Empty(t, c.AccessToken())
}

func TestCell_SetUser(t *testing.T) {
	t.Parallel()

	c := NewCell(newMemoryCookies(), nil)
	c.SetUser(&Identity{Email: "test@example.com"}, "test-token")
	require.Equal(t, &Identity{Email: "test@example.com"}, c.User())
	require.Equal(t, "test-token", c.AccessToken())

	c.SetUser(nil, "")
	require.Nil(t, c.User())
	require.Empty(t, c.AccessToken())
}

func TestCell_UserReturnsCopy(t *testing.T) {
	t.Parallel()

	c := NewCell(nil, nil)
	id := &Identity{Email: "a@b.com"}
	c.SetUser(id, "tok")
	id.Email = "changed@b.com"
	c.User().Email = "also-changed@b.com"

	require.Equal(t, "a@b.com", c.User().Email)
}

func TestCell_SetTokensKeepsIdentity(t *testing.T) {
	t.Parallel()

	c := NewCell(newMemoryCookies(), nil)
	c.SetUser(&Identity{Email: "a@b.com"}, "tok1")
	c.SetTokens("tok2", nil)

	require.Equal(t, &Identity{Email: "a@b.com"}, c.User())
	require.Equal(t, "tok2", c.AccessToken())
}

func TestCell_SetTokensWritesRefreshCookie(t *testing.T) {
	t.Parallel()

	cookies := newMemoryCookies()
	c := NewCell(cookies, nil)
	c.SetTokens("access-token", strPtr("refresh-token"))

	require.Equal(t, "access-token", c.AccessToken())
	got, ok := cookies.get(RefreshCookieName)
	require.True(t, ok)
	require.Equal(t, "refresh-token", got.Value)
	require.Equal(t, "/", got.Path)
	require.True(t, got.HttpOnly)
	require.True(t, got.Secure)
	require.Equal(t, http.SameSiteStrictMode, got.SameSite)
}

func TestCell_SetTokensWithoutRefreshErasesCookie(t *testing.T) {
	t.Parallel()

	for _, refresh := range []*string{nil, strPtr("")} {
		cookies := newMemoryCookies()
		c := NewCell(cookies, nil)
		c.SetTokens("access-token", strPtr("refresh-token"))
		c.SetTokens("new-access-token", refresh)

		require.Equal(t, "new-access-token", c.AccessToken())
		_, ok := cookies.get(RefreshCookieName)
		require.False(t, ok)

		last := cookies.last()
		require.Empty(t, last.Value)
		require.True(t, last.HttpOnly)
		require.Equal(t, http.SameSiteStrictMode, last.SameSite)
	}
}

func TestCell_SetAccessTokenLeavesCookie(t *testing.T) {
	t.Parallel()

	cookies := newMemoryCookies()
	c := NewCell(cookies, nil)
	c.SetUser(&Identity{Email: "a@b.com"}, "tok1")
	c.SetTokens("tok1", strPtr("refresh1"))
	c.SetAccessToken("tok2")

	require.Equal(t, "tok2", c.AccessToken())
	require.Equal(t, "a@b.com", c.User().Email)
	got, ok := cookies.get(RefreshCookieName)
	require.True(t, ok)
	require.Equal(t, "refresh1", got.Value)
}

func TestCell_Logout(t *testing.T) {
	t.Parallel()

	cookies := newMemoryCookies()
	c := NewCell(cookies, nil)
	c.SetUser(&Identity{Email: "test@example.com"}, "access-token")
	c.SetTokens("tok1", strPtr("refresh1"))

	c.Logout()

	require.Nil(t, c.User())
	require.Empty(t, c.AccessToken())
	_, ok := cookies.get(RefreshCookieName)
	require.False(t, ok)
}

func TestCell_LogoutExpiresPersistedCookie(t *testing.T) {
	t.Parallel()

	store, err := storage.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	defer store.Close()
	jar, err := store.Cookies("https://api.example.com")
	require.NoError(t, err)

	c := NewCell(jar, store)
	c.SetTokens("tok1", strPtr("refresh1"))
	stored, ok := jar.Cookie(RefreshCookieName)
	require.True(t, ok)
	require.Equal(t, "refresh1", stored.Value)

	c.Logout()
	_, ok = jar.Cookie(RefreshCookieName)
	require.False(t, ok)
}

func TestCell_InitializeFromStorage(t *testing.T) {
	t.Parallel()

	c := NewCell(nil, legacyMap{LegacyTokenKey: "stored-token"})
	c.SetUser(&Identity{Email: "keep@b.com"}, "")
	c.InitializeFromStorage(context.Background())

	require.Equal(t, "stored-token", c.AccessToken())
	require.Equal(t, "keep@b.com", c.User().Email)
}

func TestCell_InitializeFromStorageWithoutSlot(t *testing.T) {
	t.Parallel()

	c := NewCell(nil, legacyMap{})
	c.InitializeFromStorage(context.Background())
	require.Empty(t, c.AccessToken())

	c.SetTokens("existing", nil)
	c.InitializeFromStorage(context.Background())
	require.Equal(t, "existing", c.AccessToken())

	empty := NewCell(nil, legacyMap{LegacyTokenKey: ""})
	empty.InitializeFromStorage(context.Background())
	require.Empty(t, empty.AccessToken())

	broken := NewCell(nil, failingLegacy{})
	broken.InitializeFromStorage(context.Background())
	require.Empty(t, broken.AccessToken())

	none := NewCell(nil, nil)
	none.InitializeFromStorage(context.Background())
	require.Empty(t, none.AccessToken())
}

func TestCell_InitializeFromSQLiteStore(t *testing.T) {
	t.Parallel()

	store, err := storage.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Set(context.Background(), LegacyTokenKey, "stored-token"))

	c := NewCell(nil, store)
	c.InitializeFromStorage(context.Background())
	require.Equal(t, "stored-token", c.AccessToken())
}

func TestCell_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := NewCell(newMemoryCookies(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.SetUser(&Identity{Email: "a@b.com"}, "tok")
		}()
		go func() {
			defer wg.Done()
			_ = c.AccessToken()
			_ = c.User()
		}()
	}
	wg.Wait()
	require.Equal(t, "tok", c.AccessToken())
}

func TestTokenExpiresAt(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	got, ok := TokenExpiresAt(signed)
	require.True(t, ok)
	require.True(t, exp.Equal(got))

	now := time.Now()
	require.True(t, IsTokenExpiringSoon(signed, 10*time.Minute, now))
	require.False(t, IsTokenExpiringSoon(signed, time.Minute, now))

	_, ok = TokenExpiresAt("not-a-jwt")
	require.False(t, ok)
	require.False(t, IsTokenExpiringSoon("not-a-jwt", time.Hour, now))
}
