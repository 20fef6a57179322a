package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bhandras/starter/internal/logger"
	"github.com/spf13/viper"
)

const (
	// envPrefix is prepended to every environment override, e.g.
	// STARTER_API_BASE_URL for api.base_url.
	envPrefix = "STARTER"

	defaultBaseURL     = "http://localhost:3000/api"
	defaultTimeout     = 15 * time.Second
	defaultServerAddr  = ":3000"
	defaultAccessTTL   = 15 * time.Minute
	defaultRefreshTTL  = 7 * 24 * time.Hour
	defaultDemoEmail   = "demo@example.com"
	defaultDemoPass    = "demo-password"
	defaultLocalDBName = "local.db"
)

// Config holds client and dev backend configuration.
type Config struct {
	// APIBaseURL resolves relative outbound addresses. It is concatenated
	// with the relative path as-is.
	APIBaseURL string
	// RequestTimeout bounds each outbound call unless the caller overrides it.
	RequestTimeout time.Duration

	// Home is the directory where local state (local store, cookies) lives.
	Home string
	// LocalDBPath is the sqlite file backing the local store and cookie jar.
	LocalDBPath string

	// Debug enables verbose logging and gin debug mode.
	Debug bool
	// LogLevel is the logger threshold.
	LogLevel logger.Level

	Server ServerConfig
}

// ServerConfig holds dev backend settings.
type ServerConfig struct {
	// Addr is the listen address for the HTTP server.
	Addr         string
	DatabasePath string
	JWTSecret    string
	// BackendURL, when set, turns /api/* into a reverse proxy to it.
	BackendURL     string
	AllowedOrigins []string
	DemoEmail      string
	DemoPassword   string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

// Overrides optionally overrides values from the config file and environment.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	APIBaseURL     *string
	RequestTimeout *time.Duration
	Home           *string
	Debug          *bool
	ServerAddr     *string
}

// Load reads configuration from defaults, an optional TOML file, and
// STARTER_* environment variables, then applies overrides.
func Load(overrides Overrides) (*Config, error) {
	v := viper.New()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	v.SetDefault("api.base_url", defaultBaseURL)
	v.SetDefault("api.timeout", defaultTimeout)
	v.SetDefault("home", filepath.Join(homeDir, ".starter"))
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", defaultServerAddr)
	v.SetDefault("server.database_path", "./starter.db")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.backend_url", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.demo_email", defaultDemoEmail)
	v.SetDefault("server.demo_password", defaultDemoPass)
	v.SetDefault("server.access_ttl", defaultAccessTTL)
	v.SetDefault("server.refresh_ttl", defaultRefreshTTL)

	v.SetConfigType("toml")
	if cfgPath := os.Getenv(envPrefix + "_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "starter"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	level, err := logger.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log_level: %w", err)
	}

	cfg := &Config{
		APIBaseURL:     v.GetString("api.base_url"),
		RequestTimeout: v.GetDuration("api.timeout"),
		Home:           v.GetString("home"),
		Debug:          v.GetBool("debug"),
		LogLevel:       level,
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			DatabasePath:   v.GetString("server.database_path"),
			JWTSecret:      v.GetString("server.jwt_secret"),
			BackendURL:     v.GetString("server.backend_url"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
			DemoEmail:      v.GetString("server.demo_email"),
			DemoPassword:   v.GetString("server.demo_password"),
			AccessTTL:      v.GetDuration("server.access_ttl"),
			RefreshTTL:     v.GetDuration("server.refresh_ttl"),
		},
	}

	if overrides.APIBaseURL != nil {
		cfg.APIBaseURL = *overrides.APIBaseURL
	}
	if overrides.RequestTimeout != nil {
		cfg.RequestTimeout = *overrides.RequestTimeout
	}
	if overrides.Home != nil {
		cfg.Home = *overrides.Home
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
	if overrides.ServerAddr != nil {
		cfg.Server.Addr = *overrides.ServerAddr
	}
	if cfg.Debug && cfg.LogLevel > logger.LevelDebug {
		cfg.LogLevel = logger.LevelDebug
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("api.base_url must not be empty")
	}
	if cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("api.timeout must not be negative")
	}
	if cfg.Server.AccessTTL <= 0 || cfg.Server.RefreshTTL <= 0 {
		return nil, fmt.Errorf("server token TTLs must be positive")
	}

	cfg.LocalDBPath = filepath.Join(cfg.Home, defaultLocalDBName)
	return cfg, nil
}

// EnsureHome creates the local state directory.
func (c *Config) EnsureHome() error {
	if err := os.MkdirAll(c.Home, 0o700); err != nil {
		return fmt.Errorf("failed to create home %s: %w", c.Home, err)
	}
	return nil
}
