package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the codescope server.
type Config struct {
	Server  ServerConfig
	Local   LocalConfig
	Remote  RemoteConfig
	Redis   RedisConfig
	Vault   VaultConfig
	Suggest SuggestConfig
	Dedup   DedupConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// LocalConfig locates the embedded SQLite mirror.
type LocalConfig struct {
	DataDir string
}

// RemoteConfig points at the primary document backend. URL may be empty:
// the application then runs purely on the local mirror.
type RemoteConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	WriteTimeout    time.Duration
	ProbeTimeout    time.Duration
}

// RedisConfig is optional; when URL is empty the summary cache is disabled.
type RedisConfig struct {
	URL        string
	SummaryTTL time.Duration
}

// VaultConfig controls credential encryption. When Passphrase is empty a
// machine secret file under DataDir is generated and used instead.
type VaultConfig struct {
	Passphrase string
}

type SuggestConfig struct {
	Model   string
	Timeout time.Duration
}

type DedupConfig struct {
	Window  time.Duration
	MaxSize int
}

// DatabasePath returns the SQLite file path inside the data directory.
func (c LocalConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// Load reads configuration from environment variables and returns a
// validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CODESCOPE_PORT", 8080),
			Env:  envString("CODESCOPE_ENV", "development"),
		},
		Local: LocalConfig{
			DataDir: envString("CODESCOPE_DATA_DIR", defaultDataDir()),
		},
		Remote: RemoteConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			WriteTimeout:    envDuration("REMOTE_WRITE_TIMEOUT", 5*time.Second),
			ProbeTimeout:    envDuration("REMOTE_PROBE_TIMEOUT", 2*time.Second),
		},
		Redis: RedisConfig{
			URL:        os.Getenv("REDIS_URL"),
			SummaryTTL: envDuration("REDIS_SUMMARY_TTL", 30*time.Second),
		},
		Vault: VaultConfig{
			Passphrase: os.Getenv("CODESCOPE_VAULT_PASSPHRASE"),
		},
		Suggest: SuggestConfig{
			Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout: envDuration("SUGGEST_TIMEOUT", 15*time.Second),
		},
		Dedup: DedupConfig{
			Window:  envDuration("DEDUP_WINDOW", 10*time.Second),
			MaxSize: envInt("DEDUP_MAX_SIZE", 1024),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Local.DataDir == "" {
		return fmt.Errorf("CODESCOPE_DATA_DIR is required")
	}

	if c.Remote.URL != "" &&
		!strings.HasPrefix(c.Remote.URL, "postgres://") &&
		!strings.HasPrefix(c.Remote.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must be a postgres URL, got %q", c.Remote.URL)
	}

	if c.Dedup.Window <= 0 {
		return fmt.Errorf("DEDUP_WINDOW must be positive")
	}
	if c.Suggest.Timeout <= 0 {
		return fmt.Errorf("SUGGEST_TIMEOUT must be positive")
	}

	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".codescope")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
