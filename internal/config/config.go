package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"

	"github.com/xxxsen/semindex/internal/model"
)

type Config struct {
	Port        int              `json:"port"`
	RateLimitMs int64            `json:"rate_limit_ms"`
	AllowOrigin []string         `json:"allow_origins"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	Encoder     EncoderConfig    `json:"encoder"`
	Remote      RemoteConfig     `json:"remote"`
	InputStore  InputStoreConfig `json:"input_store"`
	Index       IndexConfig      `json:"index"`
	Settings    model.Settings   `json:"settings"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type EncoderConfig struct {
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	Dimension int         `json:"dimension"`
	Version   int         `json:"version"`
	Timeout   int         `json:"timeout"`
	Data      interface{} `json:"data"`
}

type RemoteConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type InputStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type IndexConfig struct {
	MinSimilarity    *float64 `json:"min_similarity"`
	ReloadDebounceMs int64    `json:"reload_debounce_ms"`
	QueryCacheSize   int      `json:"query_cache_size"`
	BackfillSpec     string   `json:"backfill_spec"`
	SyncSpec         string   `json:"sync_spec"`
	StaleFlushSpec   string   `json:"stale_flush_spec"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres")
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if cfg.Encoder.Provider == "" {
		return fmt.Errorf("encoder.provider is required")
	}
	if cfg.Encoder.Dimension <= 0 {
		cfg.Encoder.Dimension = 512
	}
	if cfg.Encoder.Version <= 0 {
		cfg.Encoder.Version = 1
	}
	if cfg.InputStore.Type == "" {
		cfg.InputStore.Type = "local"
	}
	if cfg.Index.MinSimilarity == nil {
		v := 0.20
		cfg.Index.MinSimilarity = &v
	}
	if cfg.Index.ReloadDebounceMs <= 0 {
		cfg.Index.ReloadDebounceMs = 4000
	}
	if cfg.Index.QueryCacheSize <= 0 {
		cfg.Index.QueryCacheSize = 20
	}
	if cfg.Index.BackfillSpec == "" {
		cfg.Index.BackfillSpec = "*/30 * * * *"
	}
	if cfg.Index.SyncSpec == "" {
		cfg.Index.SyncSpec = "*/10 * * * *"
	}
	if cfg.Index.StaleFlushSpec == "" {
		cfg.Index.StaleFlushSpec = "*/5 * * * *"
	}
	return nil
}
