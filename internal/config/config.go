package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the runtime configuration of the service, read from the environment.
type Config struct {
	Addr          string
	CatalogDB     string
	SessionDir    string // empty keeps sessions in memory
	DocsDir       string
	IndexPath     string
	KnowledgeFile string // empty uses the embedded default
	OracleTimeout time.Duration
	Offline       bool
	WatchDocs     bool
	RateLimit     int // turns per minute per thread
	IngestWorkers int
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:          getEnv("JEWELBOT_ADDR", ":8000"),
		CatalogDB:     getEnv("JEWELBOT_CATALOG_DB", "./data/catalog.db"),
		SessionDir:    getEnv("JEWELBOT_SESSION_DIR", ""),
		DocsDir:       getEnv("JEWELBOT_DOCS_DIR", "./documents"),
		IndexPath:     getEnv("JEWELBOT_INDEX_PATH", "./data/knowledge.bleve"),
		KnowledgeFile: getEnv("JEWELBOT_KNOWLEDGE_FILE", ""),
		Offline:       getEnvBool("JEWELBOT_OFFLINE", false),
		WatchDocs:     getEnvBool("JEWELBOT_WATCH_DOCS", true),
	}

	var err error
	if cfg.OracleTimeout, err = getEnvDuration("JEWELBOT_ORACLE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getEnvInt("JEWELBOT_RATE_LIMIT", 30); err != nil {
		return nil, err
	}
	if cfg.IngestWorkers, err = getEnvInt("JEWELBOT_INGEST_WORKERS", 4); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("JEWELBOT_ADDR must not be empty")
	}
	if c.CatalogDB == "" {
		return fmt.Errorf("JEWELBOT_CATALOG_DB must not be empty")
	}
	if c.OracleTimeout <= 0 {
		return fmt.Errorf("JEWELBOT_ORACLE_TIMEOUT must be positive, got %s", c.OracleTimeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("JEWELBOT_RATE_LIMIT must not be negative, got %d", c.RateLimit)
	}
	if c.IngestWorkers <= 0 {
		return fmt.Errorf("JEWELBOT_INGEST_WORKERS must be positive, got %d", c.IngestWorkers)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return d, nil
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
