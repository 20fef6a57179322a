// Package auth holds the client's credentials.
//
// A Cell keeps the signed-in identity and the short-lived access token in
// memory only. The long-lived refresh token never enters the Cell: it is
// written to the refreshToken cookie through a CookieSink, which in
// production is the persistent cookie jar also used by the HTTP client.
package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bhandras/starter/internal/logger"
)

const (
	// RefreshCookieName is the cookie carrying the renewal credential.
	RefreshCookieName = "refreshToken"
	// LegacyTokenKey is the local store slot older clients kept the access
	// token in.
	LegacyTokenKey = "authToken"
)

// Identity is the signed-in user.
type Identity struct {
	Email string `json:"email"`
}

// CookieSink receives cookie writes.
type CookieSink interface {
	SetCookie(c *http.Cookie)
}

// LegacyStore reads the durable key/value slot used by older clients.
type LegacyStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Cell is the in-memory credential holder. All methods are safe for
// concurrent use and each one is applied atomically.
type Cell struct {
	mu          sync.RWMutex
	user        *Identity
	accessToken string

	cookies CookieSink
	legacy  LegacyStore
}

// NewCell creates an empty cell. Either dependency may be nil: cookie writes
// and legacy imports are then skipped.
func NewCell(cookies CookieSink, legacy LegacyStore) *Cell {
	return &Cell{cookies: cookies, legacy: legacy}
}

// User returns a copy of the signed-in identity, or nil.
func (c *Cell) User() *Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// AccessToken returns the current access token, or "" when there is none.
func (c *Cell) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetUser replaces identity and access token together.
func (c *Cell) SetUser(user *Identity, accessToken string) {
	var copied *Identity
	if user != nil {
		u := *user
		copied = &u
	}

	c.mu.Lock()
	c.user = copied
	c.accessToken = accessToken
	c.mu.Unlock()
}

// SetTokens replaces the access token only; the identity is left as is. A
// non-empty refreshToken is written to the refresh cookie, while nil or ""
// erases the cookie.
func (c *Cell) SetTokens(accessToken string, refreshToken *string) {
	c.mu.Lock()
	c.accessToken = accessToken
	c.mu.Unlock()

	if refreshToken != nil && *refreshToken != "" {
		c.writeCookie(RefreshCookie(*refreshToken))
		return
	}
	c.writeCookie(ExpiredRefreshCookie())
}

// SetAccessToken replaces the access token and leaves the identity and the
// refresh cookie untouched. Used after a renewal, where the server owns the
// cookie.
func (c *Cell) SetAccessToken(accessToken string) {
	c.mu.Lock()
	c.accessToken = accessToken
	c.mu.Unlock()
}

// Logout clears identity and access token and expires the refresh cookie.
func (c *Cell) Logout() {
	c.mu.Lock()
	c.user = nil
	c.accessToken = ""
	c.mu.Unlock()

	c.writeCookie(ExpiredRefreshCookie())
}

// InitializeFromStorage imports an access token left in the legacy slot by
// older clients. A missing or empty slot changes nothing; lookup errors are
// logged and treated the same way.
func (c *Cell) InitializeFromStorage(ctx context.Context) {
	if c.legacy == nil {
		return
	}
	token, ok, err := c.legacy.Get(ctx, LegacyTokenKey)
	if err != nil {
		logger.Warnf("auth: failed to read legacy token: %v", err)
		return
	}
	if !ok || token == "" {
		return
	}

	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
	logger.Debugf("auth: imported access token from legacy storage")
}

func (c *Cell) writeCookie(cookie *http.Cookie) {
	if c.cookies == nil {
		return
	}
	c.cookies.SetCookie(cookie)
}

// RefreshCookie builds the refresh cookie carrying token.
func RefreshCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// ExpiredRefreshCookie builds the cookie that erases the refresh cookie.
func ExpiredRefreshCookie() *http.Cookie {
	c := RefreshCookie("")
	c.Expires = time.Unix(0, 0).UTC()
	c.MaxAge = -1
	return c
}
