// ABOUTME: Centralized configuration for the om sync engine and its surfaces
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
)

// Local store drivers
const (
	LocalSQLite = "sqlite"
	LocalCharm  = "charm"
	LocalMemory = "memory"
)

// Remote store drivers
const (
	RemoteSQLite    = "sqlite"
	RemotePostgres  = "postgres"
	RemotePostgREST = "postgrest"
	RemoteOffline   = "offline"
)

// Config holds all configuration for om
type Config struct {
	UserID  string
	DataDir string

	// Local store settings
	LocalDriver string
	CharmHost   string
	CharmDBName string
	AutoSync    bool

	// Remote store settings
	RemoteDriver  string
	RemoteDSN     string
	RemoteURL     string
	RemoteAPIKey  string
	RemoteTimeout time.Duration

	// Engine settings
	HistoryLimit      int
	OutboxShards      int
	OutboxQueueSize   int
	OutboxMaxAttempts int
	OutboxBaseBackoff time.Duration

	// OpenAI settings
	OpenAIKey  string
	ChatModel  string
	MaxRetries int
	RetryDelay time.Duration

	// Logging and HTTP
	LogLevel  string
	LogPretty bool
	HTTPAddr  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		UserID:            os.Getenv("OM_USER_ID"),
		DataDir:           getEnv("OM_DATA_DIR", defaultDataDir()),
		LocalDriver:       getEnv("OM_LOCAL_DRIVER", LocalSQLite),
		CharmHost:         getEnv("CHARM_HOST", "cloud.charm.sh"),
		CharmDBName:       getEnv("CHARM_DB", "om"),
		AutoSync:          getEnvBool("CHARM_AUTO_SYNC", false),
		RemoteDriver:      getEnv("OM_REMOTE_DRIVER", RemoteSQLite),
		RemoteDSN:         os.Getenv("OM_REMOTE_DSN"),
		RemoteURL:         os.Getenv("OM_REMOTE_URL"),
		RemoteAPIKey:      os.Getenv("OM_REMOTE_API_KEY"),
		RemoteTimeout:     getEnvDuration("OM_REMOTE_TIMEOUT", 10*time.Second),
		HistoryLimit:      getEnvInt("OM_HISTORY_LIMIT", 50),
		OutboxShards:      getEnvInt("OM_OUTBOX_SHARDS", 4),
		OutboxQueueSize:   getEnvInt("OM_OUTBOX_QUEUE_SIZE", 256),
		OutboxMaxAttempts: getEnvInt("OM_OUTBOX_MAX_ATTEMPTS", 5),
		OutboxBaseBackoff: getEnvDuration("OM_OUTBOX_BASE_BACKOFF", 200*time.Millisecond),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		ChatModel:         getEnv("OM_OPENAI_MODEL", "gpt-4o-mini"),
		MaxRetries:        getEnvInt("OPENAI_MAX_RETRIES", 2),
		RetryDelay:        getEnvDuration("OPENAI_RETRY_DELAY", time.Second),
		LogLevel:          getEnv("OM_LOG_LEVEL", "info"),
		LogPretty:         getEnvBool("OM_LOG_PRETTY", true),
		HTTPAddr:          getEnv("OM_HTTP_ADDR", "127.0.0.1:8787"),
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.LocalDriver {
	case LocalSQLite, LocalCharm, LocalMemory:
	default:
		return fmt.Errorf("OM_LOCAL_DRIVER must be sqlite, charm or memory, got %q", c.LocalDriver)
	}
	switch c.RemoteDriver {
	case RemoteSQLite, RemoteOffline:
	case RemotePostgres:
		if c.RemoteDSN == "" {
			return fmt.Errorf("OM_REMOTE_DSN is required for the postgres remote driver")
		}
	case RemotePostgREST:
		if c.RemoteURL == "" {
			return fmt.Errorf("OM_REMOTE_URL is required for the postgrest remote driver")
		}
	default:
		return fmt.Errorf("OM_REMOTE_DRIVER must be sqlite, postgres, postgrest or offline, got %q", c.RemoteDriver)
	}
	if c.HistoryLimit < 1 || c.HistoryLimit > 500 {
		return fmt.Errorf("OM_HISTORY_LIMIT must be 1-500, got %d", c.HistoryLimit)
	}
	if c.OutboxMaxAttempts < 1 || c.OutboxMaxAttempts > 20 {
		return fmt.Errorf("OM_OUTBOX_MAX_ATTEMPTS must be 1-20, got %d", c.OutboxMaxAttempts)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	return nil
}

// LocalDBPath is the sqlite file backing the local store
func (c *Config) LocalDBPath() string {
	return filepath.Join(c.DataDir, "local.db")
}

// RemoteDBPath is the sqlite file used by the sqlite remote driver when no DSN is set
func (c *Config) RemoteDBPath() string {
	if c.RemoteDSN != "" {
		return c.RemoteDSN
	}
	return filepath.Join(c.DataDir, "remote.db")
}

// defaultDataDir follows the XDG spec: $XDG_DATA_HOME/om
func defaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	return filepath.Join(dataHome, "om")
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
