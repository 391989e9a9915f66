// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Data   DataConfig
	Server ServerConfig
	Twitch TwitchConfig
	Cache  CacheConfig
	Live   LiveConfig
	Tags   TagsConfig
	Sync   SyncConfig
	Notify NotifyConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the on-disk layout for both storage scopes and the key file.
type DataConfig struct {
	BasePath string
}

// LocalPath is the Badger directory backing the device-local scope.
func (d DataConfig) LocalPath() string {
	return filepath.Join(d.BasePath, "local")
}

// SyncPath is the directory holding the mirrored sync-scope database.
func (d DataConfig) SyncPath() string {
	return filepath.Join(d.BasePath, "sync")
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr           string        // Listen address (default: 127.0.0.1:47615)
	ReadTimeout    time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout   time.Duration // HTTP write timeout, 0 for SSE friendliness (default: 0)
	IdleTimeout    time.Duration // HTTP idle timeout (default: 60s)
	AllowedOrigins []string      // CORS origins for extension surfaces
	SurfaceTTL     time.Duration // Lifetime of a surface token (default: 24h)
}

// TwitchConfig holds Helix and OAuth endpoint configuration.
type TwitchConfig struct {
	ClientID     string
	ClientSecret string // Optional; device flow works without it
	APIBaseURL   string
	AuthBaseURL  string
	Scopes       []string
}

// CacheConfig holds follow cache tuning.
type CacheConfig struct {
	TTL       time.Duration
	BatchSize int
}

// LiveConfig holds live tracker tuning.
type LiveConfig struct {
	Period              time.Duration // Defaults to Cache.TTL
	Debounce            time.Duration
	NotificationSpacing time.Duration
	LogCapacity         int
}

// TagsConfig holds tag document limits.
type TagsConfig struct {
	QueueCapacity int
	NameMaxLength int
}

// SyncConfig holds the sync-scope quota policy.
type SyncConfig struct {
	QuotaBytes int64
	WarnRatio  float64
	BlockRatio float64
}

// NotifyConfig holds notification sinks.
type NotifyConfig struct {
	Desktop           bool
	DiscordWebhookURL string // Optional
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return Load(flag.CommandLine, os.Args[1:])
}

// Load is LoadConfig against an explicit flag set, so tests can drive it.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for local and sync storage")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	addr := fs.String("addr", "", "Listen address (default: 127.0.0.1:47615)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	origins := fs.String("allowed-origins", "", "Comma separated CORS origins")

	clientID := fs.String("twitch-client-id", "", "Twitch application client id")
	cacheTTL := fs.String("cache-ttl", "", "Follow cache time-to-live (default: 5m)")
	livePeriod := fs.String("live-period", "", "Live check period (default: cache TTL)")
	discordWebhook := fs.String("discord-webhook", "", "Discord webhook URL for live notifications")
	desktop := fs.String("desktop-notifications", "", "Send desktop notifications over D-Bus (default: true)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Real environment always wins over the .env file.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Addr:           getConfigValue(*addr, "SERVER_ADDR", "127.0.0.1:47615"),
			AllowedOrigins: splitList(getConfigValue(*origins, "ALLOWED_ORIGINS", "chrome-extension://*,moz-extension://*")),
		},
		Twitch: TwitchConfig{
			ClientID:     getConfigValue(*clientID, "TWITCH_CLIENT_ID", ""),
			ClientSecret: getConfigValue("", "TWITCH_CLIENT_SECRET", ""),
			APIBaseURL:   getConfigValue("", "TWITCH_API_URL", "https://api.twitch.tv/helix"),
			AuthBaseURL:  getConfigValue("", "TWITCH_AUTH_URL", "https://id.twitch.tv/oauth2"),
			Scopes:       splitList(getConfigValue("", "TWITCH_SCOPES", "user:read:follows")),
		},
		Cache: CacheConfig{
			BatchSize: getIntConfigValue("", "CACHE_BATCH_SIZE", 100),
		},
		Live: LiveConfig{
			LogCapacity: getIntConfigValue("", "LIVE_LOG_CAPACITY", 100),
		},
		Tags: TagsConfig{
			QueueCapacity: getIntConfigValue("", "TAGS_QUEUE_CAPACITY", 50),
			NameMaxLength: getIntConfigValue("", "TAGS_NAME_MAX_LENGTH", 50),
		},
		Sync: SyncConfig{
			QuotaBytes: int64(getIntConfigValue("", "SYNC_QUOTA_BYTES", 102400)),
			WarnRatio:  getFloatConfigValue("", "SYNC_WARN_RATIO", 0.8),
			BlockRatio: getFloatConfigValue("", "SYNC_BLOCK_RATIO", 0.95),
		},
		Notify: NotifyConfig{
			Desktop:           getBoolConfigValue(*desktop, "DESKTOP_NOTIFICATIONS", true),
			DiscordWebhookURL: getConfigValue(*discordWebhook, "DISCORD_WEBHOOK_URL", ""),
		},
	}

	var err error
	if cfg.Server.ReadTimeout, err = getDurationConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = getDurationConfigValue("", "SERVER_WRITE_TIMEOUT", "0s"); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = getDurationConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.Server.SurfaceTTL, err = getDurationConfigValue("", "SURFACE_TOKEN_TTL", "24h"); err != nil {
		return nil, err
	}
	if cfg.Cache.TTL, err = getDurationConfigValue(*cacheTTL, "CACHE_TTL", "5m"); err != nil {
		return nil, err
	}
	if cfg.Live.Period, err = getDurationConfigValue(*livePeriod, "LIVE_PERIOD", cfg.Cache.TTL.String()); err != nil {
		return nil, err
	}
	if cfg.Live.Debounce, err = getDurationConfigValue("", "LIVE_DEBOUNCE", "1500ms"); err != nil {
		return nil, err
	}
	if cfg.Live.NotificationSpacing, err = getDurationConfigValue("", "LIVE_NOTIFICATION_SPACING", "500ms"); err != nil {
		return nil, err
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Cache.TTL <= 0 {
		return errors.New("cache TTL must be positive")
	}
	if c.Cache.BatchSize < 1 || c.Cache.BatchSize > 100 {
		return fmt.Errorf("cache batch size %d out of range (1-100)", c.Cache.BatchSize)
	}
	if c.Live.Period <= 0 {
		return errors.New("live period must be positive")
	}
	if c.Live.LogCapacity < 1 {
		return errors.New("live log capacity must be at least 1")
	}
	if c.Tags.QueueCapacity < 1 {
		return errors.New("tag queue capacity must be at least 1")
	}
	if c.Tags.NameMaxLength < 1 {
		return errors.New("tag name max length must be at least 1")
	}
	if c.Sync.QuotaBytes <= 0 {
		return errors.New("sync quota must be positive")
	}
	if c.Sync.WarnRatio <= 0 || c.Sync.BlockRatio > 1 || c.Sync.WarnRatio > c.Sync.BlockRatio {
		return fmt.Errorf("sync ratios must satisfy 0 < warn (%.2f) <= block (%.2f) <= 1", c.Sync.WarnRatio, c.Sync.BlockRatio)
	}

	// Twitch client id may be empty in development: the daemon starts signed out.

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults to ~/.starwatch.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, ".starwatch")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envKey != "" {
		if envValue := os.Getenv(envKey); envValue != "" {
			return envValue
		}
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

// getDurationConfigValue parses a duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToLower(envKey), strValue, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
