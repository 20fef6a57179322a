package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bhandras/starter/internal/logger"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("STARTER_CONFIG", "")
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, cfg.APIBaseURL)
	require.Equal(t, defaultTimeout, cfg.RequestTimeout)
	require.Equal(t, filepath.Join(home, ".starter"), cfg.Home)
	require.Equal(t, filepath.Join(home, ".starter", "local.db"), cfg.LocalDBPath)
	require.Equal(t, logger.LevelInfo, cfg.LogLevel)
	require.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("STARTER_API_BASE_URL", "https://api.example.com")
	t.Setenv("STARTER_API_TIMEOUT", "3s")
	t.Setenv("STARTER_SERVER_JWT_SECRET", "s3cret")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	require.Equal(t, 3*time.Second, cfg.RequestTimeout)
	require.Equal(t, "s3cret", cfg.Server.JWTSecret)
}

func TestLoad_ConfigFileAndOverrides(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
debug = true

[api]
base_url = "https://file.example.com"

[server]
addr = ":9999"
`), 0o600))
	t.Setenv("STARTER_CONFIG", path)

	base := "https://override.example.com"
	cfg, err := Load(Overrides{APIBaseURL: &base})
	require.NoError(t, err)
	require.Equal(t, base, cfg.APIBaseURL)
	require.Equal(t, ":9999", cfg.Server.Addr)
	require.True(t, cfg.Debug)
	require.Equal(t, logger.LevelDebug, cfg.LogLevel)
}

func TestLoad_RejectsEmptyBaseURL(t *testing.T) {
	isolate(t)

	empty := ""
	_, err := Load(Overrides{APIBaseURL: &empty})
	require.Error(t, err)
}

func TestEnsureHome(t *testing.T) {
	isolate(t)
	dir := filepath.Join(t.TempDir(), "nested", "home")
	cfg, err := Load(Overrides{Home: &dir})
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureHome())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
