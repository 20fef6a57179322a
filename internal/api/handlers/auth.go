package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/bhandras/starter/internal/api/middleware"
	"github.com/bhandras/starter/internal/auth"
	"github.com/bhandras/starter/internal/crypto"
	"github.com/bhandras/starter/internal/database"
	"github.com/bhandras/starter/internal/logger"
	"github.com/bhandras/starter/internal/wire"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	queries    *database.Queries
	jwtManager *crypto.JWTManager
	refreshTTL time.Duration
}

func NewAuthHandler(queries *database.Queries, jwtManager *crypto.JWTManager, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		queries:    queries,
		jwtManager: jwtManager,
		refreshTTL: refreshTTL,
	}
}

// PostLogin checks credentials, issues an access token, and sets the
// refresh cookie.
// POST /api/auth/login
func (h *AuthHandler) PostLogin(c *gin.Context) {
	var req wire.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, wire.ErrorResponse{Error: err.Error()})
		return
	}

	user, err := h.queries.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, database.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, wire.ErrorResponse{Error: "invalid credentials"})
		return
	}
	if err != nil {
		logger.Errorf("PostLogin: Authenticate failed: %v", err)
		c.JSON(http.StatusInternalServerError, wire.ErrorResponse{Error: "database error"})
		return
	}

	accessToken, err := h.jwtManager.CreateToken(user.ID, user.Email)
	if err != nil {
		logger.Errorf("PostLogin: CreateToken failed: %v", err)
		c.JSON(http.StatusInternalServerError, wire.ErrorResponse{Error: "failed to issue token"})
		return
	}

	refreshToken, err := crypto.NewRefreshToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, wire.ErrorResponse{Error: "failed to issue token"})
		return
	}
	if _, err := h.queries.CreateRefreshToken(c.Request.Context(), user.ID, refreshToken, h.refreshTTL); err != nil {
		logger.Errorf("PostLogin: CreateRefreshToken failed: %v", err)
		c.JSON(http.StatusInternalServerError, wire.ErrorResponse{Error: "failed to issue token"})
		return
	}

	cookie := auth.RefreshCookie(refreshToken)
	cookie.MaxAge = int(h.refreshTTL / time.Second)
	http.SetCookie(c.Writer, cookie)

	c.JSON(http.StatusOK, wire.LoginResponse{
		User:         wire.User{Email: user.Email},
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// PostRefresh issues a new access token for the refresh cookie.
// POST /api/auth/refresh
func (h *AuthHandler) PostRefresh(c *gin.Context) {
	refreshToken, err := c.Cookie(auth.RefreshCookieName)
	if err != nil || refreshToken == "" {
		c.JSON(http.StatusUnauthorized, wire.ErrorResponse{Error: "missing refresh token"})
		return
	}

	ctx := c.Request.Context()
	rt, err := h.queries.LookupRefreshToken(ctx, refreshToken)
	if errors.Is(err, database.ErrRefreshTokenInvalid) {
		c.JSON(http.StatusUnauthorized, wire.ErrorResponse{Error: "invalid refresh token"})
		return
	}
	if err != nil {
		logger.Errorf("PostRefresh: LookupRefreshToken failed: %v", err)
		c.JSON(http.StatusInternalServerError, wire.ErrorResponse{Error: "database error"})
		return
	}

	user, err := h.queries.GetUserByID(ctx, rt.UserID)
	if errors.Is(err, database.ErrUserNotFound) {
		c.JSON(http.StatusUnauthorized, wire.ErrorResponse{Error: "invalid refresh token"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, wire.ErrorResponse{Error: "database error"})
		return
	}

	accessToken, err := h.jwtManager.CreateToken(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, wire.ErrorResponse{Error: "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, wire.RefreshResponse{AccessToken: accessToken})
}

// GetMe returns the authenticated user.
// GET /api/auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, wire.ErrorResponse{Error: "unauthorized"})
		return
	}

	user, err := h.queries.GetUserByID(c.Request.Context(), userID)
	if errors.Is(err, database.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, wire.ErrorResponse{Error: "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, wire.ErrorResponse{Error: "database error"})
		return
	}
	c.JSON(http.StatusOK, wire.User{Email: user.Email})
}

// PostLogout revokes the refresh token and expires its cookie.
// POST /api/auth/logout
func (h *AuthHandler) PostLogout(c *gin.Context) {
	if refreshToken, err := c.Cookie(auth.RefreshCookieName); err == nil && refreshToken != "" {
		// Best-effort: the cookie is expired either way.
		if err := h.queries.RevokeRefreshToken(c.Request.Context(), refreshToken); err != nil {
			logger.Warnf("PostLogout: RevokeRefreshToken failed: %v", err)
		}
	}
	http.SetCookie(c.Writer, auth.ExpiredRefreshCookie())
	c.JSON(http.StatusOK, wire.SuccessResponse{Success: true})
}
