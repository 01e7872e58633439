// Package config loads the Library core's configuration from YAML with
// environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	yaml "gopkg.in/yaml.v3"
)

// StorageConfig selects and configures a StorageBackend implementation.
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory | sqlite | postgres | redis
	DSN     string `yaml:"dsn"`
	Path    string `yaml:"path"` // sqlite file path
}

// EmbeddingConfig configures the HTTP EmbeddingProvider.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"baseUrl"`
	Path       string `yaml:"path"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"apiKey"`
	APIHeader  string `yaml:"apiHeader"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeoutSeconds"`
}

// TextGenConfig configures the optional TextGenerationProvider used by Librarians.
type TextGenConfig struct {
	Provider string `yaml:"provider"` // anthropic | openai | gemini | none
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
	BaseURL  string `yaml:"baseUrl"`
}

// VectorMirrorConfig configures the optional external vector index mirror.
type VectorMirrorConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Metric     string `yaml:"metric"`
}

// KafkaTransportConfig configures the optional enterprise CirculationDesk transport.
type KafkaTransportConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	GroupID       string   `yaml:"groupId"`
	CommandsTopic string   `yaml:"commandsTopic"`
	RedisDedupeDSN string  `yaml:"redisDedupeDsn"`
	WorkerCount   int      `yaml:"workerCount"`
}

// CirculationConfig configures the background job queue.
type CirculationConfig struct {
	GlobalThreshold int `yaml:"globalThreshold"` // auto-escalate optimization past this many volumes
	TopicThreshold  int `yaml:"topicThreshold"`
	MinCompendiumEntries int `yaml:"minCompendiumEntries"`
	MinCompendiumAgeMs   int64 `yaml:"minCompendiumAgeMs"`
	DeleteOriginals bool `yaml:"deleteOriginals"`
	Kafka KafkaTransportConfig `yaml:"kafka"`
}

// Config is the root configuration for a Library instance.
type Config struct {
	Dimensions        int                `yaml:"dimensions"`
	FlushIntervalMs   int                `yaml:"flushIntervalMs"`
	AutoSave          bool               `yaml:"autoSave"`
	DedupThreshold    float64            `yaml:"dedupThreshold"`
	RecencyHalfLifeMs int64              `yaml:"recencyHalfLifeMs"`
	TextCacheCapacity int                `yaml:"textCacheCapacity"`
	CompressTextAboveBytes int           `yaml:"compressTextAboveBytes"`
	LogPath           string             `yaml:"logPath"`
	LogLevel          string             `yaml:"logLevel"`

	Storage      StorageConfig      `yaml:"storage"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	TextGen      TextGenConfig      `yaml:"textGeneration"`
	VectorMirror VectorMirrorConfig `yaml:"vectorMirror"`
	Circulation  CirculationConfig  `yaml:"circulation"`
}

// Load reads configuration from filename (YAML) then overlays environment
// variables and .env for secrets. A missing config file prints a colorized
// warning rather than failing; missing-but-defaultable fields fall back to
// defaults, and only the dimensions default is announced on the console.
func Load(filename string) (*Config, error) {
	_ = godotenv.Overload()

	cfg := &Config{}
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", filename, err)
			}
			pterm.Warning.Printfln("config file %s not found, using defaults + environment", filename)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filename, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LIBRARY_EMBEDDING_API_KEY")); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LIBRARY_TEXTGEN_API_KEY")); v != "" {
		cfg.TextGen.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LIBRARY_STORAGE_DSN")); v != "" {
		cfg.Storage.DSN = v
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Dimensions == 0 {
		pterm.Info.Println("dimensions not set, defaulting to 1536")
		cfg.Dimensions = 1536
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.DedupThreshold == 0 {
		cfg.DedupThreshold = 0.97
	}
	if cfg.RecencyHalfLifeMs == 0 {
		cfg.RecencyHalfLifeMs = int64(30 * 24 * time.Hour / time.Millisecond)
	}
	if cfg.TextCacheCapacity == 0 {
		cfg.TextCacheCapacity = 256
	}
	if cfg.CompressTextAboveBytes == 0 {
		cfg.CompressTextAboveBytes = 1024
	}
	if cfg.Embedding.TimeoutSec == 0 {
		cfg.Embedding.TimeoutSec = 30
	}
	if cfg.Circulation.GlobalThreshold == 0 {
		cfg.Circulation.GlobalThreshold = 5000
	}
	if cfg.Circulation.TopicThreshold == 0 {
		cfg.Circulation.TopicThreshold = 50
	}
	if cfg.Circulation.MinCompendiumEntries == 0 {
		cfg.Circulation.MinCompendiumEntries = 10
	}
	if cfg.Circulation.MinCompendiumAgeMs == 0 {
		cfg.Circulation.MinCompendiumAgeMs = int64(24 * time.Hour / time.Millisecond)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	pterm.Success.Println("configuration loaded")
}
