package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the service reads,
// e.g. ENTOMO_PORT or ENTOMO_DATABASE_PATH.
const EnvPrefix = "ENTOMO"

const (
	defaultPort           = "8080"
	defaultDatabasePath   = "entomo.db"
	defaultMaxHistory     = 50
	defaultSessionTTL     = 30 * time.Minute
	defaultSessionCleanup = 10 * time.Minute
	defaultAllowedOrigins = "http://localhost:5173"
	defaultSaveTimeout    = 30 * time.Second
	defaultLogLevel       = "info"
)

type Config struct {
	// http listen port
	Port string

	// sqlite database path
	DatabasePath string

	// editor settings
	MaxHistory int

	// session registry
	SessionTTL     time.Duration // idle sessions are dropped after this
	SessionCleanup time.Duration // how often expired sessions are swept

	AllowedOrigins []string

	// when set, sessions save to this server instead of the local database
	RemoteURL   string
	SaveTimeout time.Duration

	LogLevel slog.Level
}

// NewViper returns a viper instance with every default registered and the
// environment bound under EnvPrefix.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("port", defaultPort)
	v.SetDefault("database_path", defaultDatabasePath)
	v.SetDefault("max_history", defaultMaxHistory)
	v.SetDefault("session_ttl", defaultSessionTTL.String())
	v.SetDefault("session_cleanup", defaultSessionCleanup.String())
	v.SetDefault("allowed_origins", defaultAllowedOrigins)
	v.SetDefault("remote_url", "")
	v.SetDefault("save_timeout", defaultSaveTimeout.String())
	v.SetDefault("log_level", defaultLogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadConfigFile merges a yaml/json/toml file into v.
func ReadConfigFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return nil
}

// LoadConfig reads .env (when present) and the environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return Load(NewViper())
}

// Load builds a Config from v. Values that do not parse fall back to their
// defaults with a warning.
func Load(v *viper.Viper) (Config, error) {
	dbPath := strings.TrimSpace(v.GetString("database_path"))
	if dbPath == "" {
		return Config{}, fmt.Errorf("database_path must not be empty")
	}

	cfg := Config{
		Port:           getStringOrDefault(v, "port", defaultPort),
		DatabasePath:   dbPath,
		MaxHistory:     getIntOrDefault(v, "max_history", defaultMaxHistory),
		SessionTTL:     getDurationOrDefault(v, "session_ttl", defaultSessionTTL),
		SessionCleanup: getDurationOrDefault(v, "session_cleanup", defaultSessionCleanup),
		AllowedOrigins: splitList(getStringOrDefault(v, "allowed_origins", defaultAllowedOrigins)),
		RemoteURL:      strings.TrimRight(strings.TrimSpace(v.GetString("remote_url")), "/"),
		SaveTimeout:    getDurationOrDefault(v, "save_timeout", defaultSaveTimeout),
		LogLevel:       getLevelOrDefault(v, "log_level", slog.LevelInfo),
	}
	return cfg, nil
}

func getStringOrDefault(v *viper.Viper, key, defaultValue string) string {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(v *viper.Viper, key string, defaultVal int) int {
	raw := v.GetString(key)
	var val int
	if _, err := fmt.Sscan(raw, &val); err != nil || val <= 0 {
		slog.Warn("invalid config value, using default", "key", key, "value", raw, "default", defaultVal)
		return defaultVal
	}
	return val
}

func getDurationOrDefault(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid config value, using default", "key", key, "value", raw, "default", defaultVal)
		return defaultVal
	}
	return d
}

func getLevelOrDefault(v *viper.Viper, key string, defaultVal slog.Level) slog.Level {
	raw := v.GetString(key)
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		slog.Warn("invalid config value, using default", "key", key, "value", raw, "default", defaultVal)
		return defaultVal
	}
	return level
}

// splitList accepts a comma separated list.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
