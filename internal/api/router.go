// Package api is the dev backend: the auth endpoints the client flows call,
// or a reverse proxy to a real backend when one is configured.
package api

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/bhandras/starter/internal/api/handlers"
	"github.com/bhandras/starter/internal/api/middleware"
	"github.com/bhandras/starter/internal/config"
	"github.com/bhandras/starter/internal/crypto"
	"github.com/bhandras/starter/internal/database"
	"github.com/bhandras/starter/internal/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	// apiPrefix is where the API is mounted, matching the client's default
	// base URL.
	apiPrefix = "/api"

	shutdownTimeout = 5 * time.Second
)

// Deps are the services the router needs.
type Deps struct {
	Queries    *database.Queries
	JWTManager *crypto.JWTManager
	RefreshTTL time.Duration
	// BackendURL switches /api/* to a reverse proxy.
	BackendURL     string
	AllowedOrigins []string
}

// NewRouter builds the gin engine.
func NewRouter(deps Deps) (*gin.Engine, error) {
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// Browsers refuse credentialed responses with a wildcard origin.
	allowCredentials := !slices.Contains(origins, "*")

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: allowCredentials,
	}))

	router.Use(middleware.LoggingMiddleware())

	// Root endpoint - returns plain text for client validation
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to Starter!")
	})

	if deps.BackendURL != "" {
		proxy, err := handlers.NewProxyHandler(apiPrefix, deps.BackendURL)
		if err != nil {
			return nil, err
		}
		router.Any(apiPrefix+"/*path", proxy)
		return router, nil
	}

	if deps.Queries == nil || deps.JWTManager == nil {
		return nil, fmt.Errorf("auth routes need queries and a JWT manager")
	}
	authHandler := handlers.NewAuthHandler(deps.Queries, deps.JWTManager, deps.RefreshTTL)

	// Public routes (no auth required)
	public := router.Group(apiPrefix)
	{
		public.POST("/auth/login", authHandler.PostLogin)
		public.POST("/auth/refresh", authHandler.PostRefresh)
		public.POST("/auth/logout", authHandler.PostLogout)
	}

	// Protected routes (auth required)
	protected := router.Group(apiPrefix)
	protected.Use(middleware.AuthMiddleware(deps.JWTManager))
	{
		protected.GET("/auth/me", authHandler.GetMe)
	}

	return router, nil
}

// Server is the dev backend process.
type Server struct {
	cfg *config.Config
	db  *database.DB
	srv *http.Server
}

// NewServer opens the database, seeds the demo user, and builds the router.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := Deps{
		RefreshTTL:     cfg.Server.RefreshTTL,
		BackendURL:     cfg.Server.BackendURL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}

	var db *database.DB
	if cfg.Server.BackendURL == "" {
		secret := cfg.Server.JWTSecret
		if secret == "" {
			raw, err := crypto.RandBytes(make([]byte, 32))
			if err != nil {
				return nil, err
			}
			secret = hex.EncodeToString(raw)
			logger.Warnf("server.jwt_secret not set; using an ephemeral secret, tokens will not survive a restart")
		}
		jwtManager, err := crypto.NewJWTManager(secret, cfg.Server.AccessTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create JWT manager: %w", err)
		}

		logger.Infof("Opening database: %s", cfg.Server.DatabasePath)
		db, err = database.OpenServer(cfg.Server.DatabasePath)
		if err != nil {
			return nil, err
		}

		queries := database.NewQueries(db.DB)
		if cfg.Server.DemoEmail != "" && cfg.Server.DemoPassword != "" {
			if _, err := queries.EnsureUser(ctx, cfg.Server.DemoEmail, cfg.Server.DemoPassword); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to seed demo user: %w", err)
			}
			logger.Infof("Demo user: %s", cfg.Server.DemoEmail)
		}
		if err := queries.DeleteExpiredRefreshTokens(ctx); err != nil {
			logger.Warnf("Failed to prune refresh tokens: %v", err)
		}

		deps.Queries = queries
		deps.JWTManager = jwtManager
	} else {
		logger.Infof("Proxying %s/* to %s", apiPrefix, cfg.Server.BackendURL)
	}

	router, err := NewRouter(deps)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	return &Server{
		cfg: cfg,
		db:  db,
		srv: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starter server listening on %s", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
