// Package account implements the sign-in flows on top of the API client and
// the credential cell.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bhandras/starter/internal/apiclient"
	"github.com/bhandras/starter/internal/auth"
	"github.com/bhandras/starter/internal/logger"
	"github.com/bhandras/starter/internal/wire"
)

const (
	// tokenRefreshWindow is how soon before expiry we refresh the token.
	tokenRefreshWindow = 2 * time.Minute

	loginPath   = "/auth/login"
	refreshPath = "/auth/refresh"
	mePath      = "/auth/me"
	logoutPath  = "/auth/logout"
)

var (
	// ErrLoginFailed wraps every login failure.
	ErrLoginFailed = errors.New("login failed")
	// ErrRefreshFailed wraps every renewal failure. The cell has been
	// logged out by the time it is returned.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// Service runs the account flows.
type Service struct {
	client *apiclient.Client
	cell   *auth.Cell

	refreshWindow time.Duration
	now           func() time.Time
}

// New creates a Service. The client should carry the cell as its token
// source and a cookie jar that is also the cell's cookie sink.
func New(client *apiclient.Client, cell *auth.Cell) *Service {
	return &Service{
		client:        client,
		cell:          cell,
		refreshWindow: tokenRefreshWindow,
		now:           time.Now,
	}
}

// Cell returns the credential cell the flows update.
func (s *Service) Cell() *auth.Cell {
	return s.cell
}

// Login signs in with email and password. On success the refresh cookie is
// written and the identity and access token are stored together.
func (s *Service) Login(ctx context.Context, email, password string) (*auth.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrLoginFailed)
	}

	resp, err := s.client.Post(ctx, loginPath, wire.LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	var out wire.LoginResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: server returned no access token", ErrLoginFailed)
	}

	identity := &auth.Identity{Email: out.User.Email}
	if out.RefreshToken != "" {
		s.cell.SetTokens(out.AccessToken, &out.RefreshToken)
	} else {
		// The cookie, if any, came with the response.
		s.cell.SetAccessToken(out.AccessToken)
	}
	s.cell.SetUser(identity, out.AccessToken)
	logger.Infof("Signed in as %s", identity.Email)
	return identity, nil
}

// Refresh renews the access token with the refresh cookie. Any failure
// logs the cell out.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	resp, err := s.client.Post(ctx, refreshPath, nil)
	if err != nil {
		s.cell.Logout()
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	var out wire.RefreshResponse
	if err := resp.Decode(&out); err != nil || out.AccessToken == "" {
		s.cell.Logout()
		if err == nil {
			err = errors.New("server returned no access token")
		}
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	// The server owns the cookie after a renewal, so only the access token
	// is replaced.
	s.cell.SetAccessToken(out.AccessToken)
	logger.Debugf("Access token refreshed")
	return out.AccessToken, nil
}

// EnsureAccessToken returns a usable access token, importing the legacy
// slot first and refreshing when the token is missing or near expiry.
func (s *Service) EnsureAccessToken(ctx context.Context) (string, error) {
	if s.cell.AccessToken() == "" {
		s.cell.InitializeFromStorage(ctx)
	}

	token := s.cell.AccessToken()
	if token != "" && !auth.IsTokenExpiringSoon(token, s.refreshWindow, s.now()) {
		return token, nil
	}
	return s.Refresh(ctx)
}

// CurrentUser fetches the signed-in identity and stores it in the cell.
func (s *Service) CurrentUser(ctx context.Context) (*auth.Identity, error) {
	resp, err := s.client.Get(ctx, mePath)
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}

	var out wire.User
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	identity := &auth.Identity{Email: out.Email}
	s.cell.SetUser(identity, s.cell.AccessToken())
	return identity, nil
}

// Logout tells the server to revoke the refresh token, then clears the
// cell. The server call is best-effort.
func (s *Service) Logout(ctx context.Context) {
	if _, err := s.client.Post(ctx, logoutPath, nil); err != nil {
		logger.Warnf("Logout request failed: %v", err)
	}
	s.cell.Logout()
}

// FetchExternal issues a GET to an absolute URL. The base URL is not
// applied, but the call is tracked like any other.
func (s *Service) FetchExternal(ctx context.Context, url string) (*apiclient.Response, error) {
	if !apiclient.IsAbsolute(strings.TrimSpace(url)) {
		return nil, fmt.Errorf("%w: %q is not an absolute URL", apiclient.ErrInvalidInput, url)
	}
	return s.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Address: url})
}
