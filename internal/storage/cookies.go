package storage

import (
	"database/sql"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bhandras/starter/internal/logger"
)

// CookieJar is a persistent http.CookieJar for a single API host.
//
// Cookies set for, or requested by, any other host are ignored so that
// credentials never leak to absolute third-party addresses. Secure cookies
// are only returned for https URLs and loopback hosts.
type CookieJar struct {
	db   *sql.DB
	host string
	now  func() time.Time
}

var _ http.CookieJar = (*CookieJar)(nil)

// SetCookies implements http.CookieJar.
func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if !j.sameHost(u) {
		return
	}
	fallback := defaultPath(u.Path)
	for _, c := range cookies {
		j.setCookie(c, fallback)
	}
}

// SetCookie stores c for the jar's host. A cookie without a path is stored
// under "/". A cookie that is already expired (negative MaxAge or an Expires
// in the past) erases the stored one. Persistence failures are logged; the
// jar interface has no error return.
func (j *CookieJar) SetCookie(c *http.Cookie) {
	j.setCookie(c, "/")
}

func (j *CookieJar) setCookie(c *http.Cookie, fallbackPath string) {
	path := c.Path
	if !strings.HasPrefix(path, "/") {
		path = fallbackPath
	}
	now := j.now()

	if isExpired(c, now) {
		if _, err := j.db.Exec(`DELETE FROM cookies WHERE name = ? AND path = ?`, c.Name, path); err != nil {
			logger.Warnf("storage: failed to erase cookie %s: %v", c.Name, err)
		}
		return
	}

	var expires sql.NullTime
	switch {
	case c.MaxAge > 0:
		expires = sql.NullTime{Time: now.Add(time.Duration(c.MaxAge) * time.Second), Valid: true}
	case !c.Expires.IsZero():
		expires = sql.NullTime{Time: c.Expires.UTC(), Valid: true}
	}

	_, err := j.db.Exec(
		`INSERT INTO cookies (name, path, value, expires_at, secure, http_only, same_site)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name, path) DO UPDATE SET
		   value = excluded.value,
		   expires_at = excluded.expires_at,
		   secure = excluded.secure,
		   http_only = excluded.http_only,
		   same_site = excluded.same_site`,
		c.Name, path, c.Value, expires, c.Secure, c.HttpOnly, int(c.SameSite),
	)
	if err != nil {
		logger.Warnf("storage: failed to store cookie %s: %v", c.Name, err)
	}
}

// Cookies implements http.CookieJar.
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	if !j.sameHost(u) {
		return nil
	}
	reqPath := u.Path
	if reqPath == "" {
		reqPath = "/"
	}
	secureOK := u.Scheme == "https" || isLoopback(u.Hostname())

	var out []*http.Cookie
	for _, c := range j.all() {
		if c.Secure && !secureOK {
			continue
		}
		if !pathMatch(c.Path, reqPath) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// Cookie returns the stored cookie named name with all of its attributes.
func (j *CookieJar) Cookie(name string) (*http.Cookie, bool) {
	for _, c := range j.all() {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func (j *CookieJar) all() []*http.Cookie {
	rows, err := j.db.Query(
		`SELECT name, path, value, expires_at, secure, http_only, same_site
		 FROM cookies ORDER BY length(path) DESC, name`,
	)
	if err != nil {
		logger.Warnf("storage: failed to read cookies: %v", err)
		return nil
	}
	defer rows.Close()

	now := j.now()
	var out []*http.Cookie
	for rows.Next() {
		var (
			c        http.Cookie
			expires  sql.NullTime
			sameSite int
		)
		if err := rows.Scan(&c.Name, &c.Path, &c.Value, &expires, &c.Secure, &c.HttpOnly, &sameSite); err != nil {
			logger.Warnf("storage: failed to scan cookie: %v", err)
			return out
		}
		if expires.Valid {
			if !expires.Time.After(now) {
				continue
			}
			c.Expires = expires.Time
		}
		c.SameSite = http.SameSite(sameSite)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		logger.Warnf("storage: failed to iterate cookies: %v", err)
	}
	return out
}

func (j *CookieJar) sameHost(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Hostname(), j.host)
}

func isExpired(c *http.Cookie, now time.Time) bool {
	if c.MaxAge < 0 {
		return true
	}
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// defaultPath is the RFC 6265 default cookie path for a request path: its
// directory, or "/" when there is none.
func defaultPath(reqPath string) string {
	if !strings.HasPrefix(reqPath, "/") {
		return "/"
	}
	i := strings.LastIndex(reqPath, "/")
	if i == 0 {
		return "/"
	}
	return reqPath[:i]
}

// pathMatch implements the RFC 6265 path-match rule.
func pathMatch(cookiePath, reqPath string) bool {
	if cookiePath == reqPath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}
