// Package app wires the client side together: one loading registry, one
// local store with its cookie jar, one credential cell, and the API client
// that reports to all of them.
package app

import (
	"context"
	"fmt"

	"github.com/bhandras/starter/internal/account"
	"github.com/bhandras/starter/internal/apiclient"
	"github.com/bhandras/starter/internal/auth"
	"github.com/bhandras/starter/internal/config"
	"github.com/bhandras/starter/internal/console"
	"github.com/bhandras/starter/internal/loading"
	"github.com/bhandras/starter/internal/logger"
	"github.com/bhandras/starter/internal/storage"
)

// App holds the process-wide client state.
type App struct {
	Config   *config.Config
	Registry *loading.Registry
	Store    *storage.Store
	Jar      *storage.CookieJar
	Cell     *auth.Cell
	Client   *apiclient.Client
	Account  *account.Service
	Console  *console.Console
}

// New builds the client state from cfg. The local store is created under
// cfg.Home if needed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.EnsureHome(); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.LocalDBPath)
	if err != nil {
		return nil, err
	}

	jar, err := store.Cookies(cfg.APIBaseURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("invalid api.base_url: %w", err)
	}

	registry := loading.New()
	cell := auth.NewCell(jar, store)
	cell.InitializeFromStorage(ctx)

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		// Zero in config means no per-call limit.
		timeout = -1
	}
	client := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: timeout,
		Tracker: registry,
		Tokens:  cell,
		Jar:     jar,
	})

	logger.Debugf("app: base url %s, local store %s", cfg.APIBaseURL, cfg.LocalDBPath)

	return &App{
		Config:   cfg,
		Registry: registry,
		Store:    store,
		Jar:      jar,
		Cell:     cell,
		Client:   client,
		Account:  account.New(client, cell),
		Console:  console.New(client, registry),
	}, nil
}

// Close releases the local store.
func (a *App) Close() error {
	return a.Store.Close()
}
