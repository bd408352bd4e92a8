package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port" validate:"required,min=1,max=65535"`
	JWTSecret     string           `json:"jwt_secret"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Database      DatabaseConfig   `json:"database"`
	FileStore     FileStoreConfig  `json:"file_store"`
	AI            AIConfig         `json:"ai"`
	EmbedCache    EmbedCacheConfig `json:"embed_cache"`
	Retrieval     RetrievalConfig  `json:"retrieval"`
	RateLimit     RateLimitConfig  `json:"rate_limit"`
	InputGuard    InputGuardConfig `json:"input_guard"`
	Ingest        IngestConfig     `json:"ingest"`
	Jobs          JobsConfig       `json:"jobs"`
	CORSAllowlist []string         `json:"cors_allowlist"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host" validate:"required_without=DSN"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`

	MaxOpenConns int `json:"max_open_conns" validate:"min=0"`
	MaxIdleConns int `json:"max_idle_conns" validate:"min=0"`
}

type FileStoreConfig struct {
	Type string      `json:"type" validate:"oneof=local s3"`
	Data interface{} `json:"data"`
}

// ProviderConfig selects one registered ai provider. Data is decoded by the provider
// factory, so each provider defines its own keys (api_key, base_url, ...).
type ProviderConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider" validate:"required"`
	Model    string      `json:"model" validate:"required"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	// Timeout bounds a single provider call, in seconds.
	Timeout int              `json:"timeout" validate:"min=1"`
	Embed   []ProviderConfig `json:"embed" validate:"dive"`
	Chat    []ProviderConfig `json:"chat" validate:"dive"`
}

type EmbedCacheConfig struct {
	LRUSize       int  `json:"lru_size" validate:"min=0"`
	LRUTTLSeconds int  `json:"lru_ttl_seconds" validate:"min=0"`
	DBEnabled     bool `json:"db_enabled"`
	MaxAgeDays    int  `json:"max_age_days" validate:"min=0"`
}

type RetrievalConfig struct {
	ChunkSize     int     `json:"chunk_size" validate:"min=1"`
	Overlap       int     `json:"overlap" validate:"min=0"`
	ChatTopK      int     `json:"chat_top_k" validate:"min=1"`
	ListTopK      int     `json:"list_top_k" validate:"min=1"`
	// MinSimilarity is a pointer so an explicit 0 survives defaulting.
	MinSimilarity *float64 `json:"min_similarity" validate:"omitempty,gte=-1,lt=1"`
}

type RateLimitConfig struct {
	// MaxRequests <= 0 after defaults (set it negative) turns throttling off.
	MaxRequests   int    `json:"max_requests"`
	WindowSeconds int    `json:"window_seconds" validate:"min=1"`
	Store         string `json:"store" validate:"oneof=postgres memory"`
}

type InputGuardConfig struct {
	MaxChars     int    `json:"max_chars" validate:"min=1"`
	PatternsFile string `json:"patterns_file"`
}

type IngestConfig struct {
	Workers        int `json:"workers" validate:"min=1"`
	QueueSize      int `json:"queue_size" validate:"min=1"`
	TimeoutSeconds int `json:"timeout_seconds" validate:"min=1"`
}

// JobsConfig holds cron specs; an empty spec disables the job.
type JobsConfig struct {
	EmbeddingCacheCleanup string `json:"embedding_cache_cleanup"`
	RateWindowCleanup     string `json:"rate_window_cleanup"`
	Reembed               string `json:"reembed"`
	ReembedBatch          int    `json:"reembed_batch" validate:"min=0"`
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
	applyDefaults(&cfg)
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 10
	}
	if cfg.EmbedCache.MaxAgeDays == 0 {
		cfg.EmbedCache.MaxAgeDays = 30
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 500
	}
	if cfg.Retrieval.Overlap == 0 {
		cfg.Retrieval.Overlap = 100
	}
	if cfg.Retrieval.ChatTopK == 0 {
		cfg.Retrieval.ChatTopK = 3
	}
	if cfg.Retrieval.ListTopK == 0 {
		cfg.Retrieval.ListTopK = 20
	}
	if cfg.Retrieval.MinSimilarity == nil {
		floor := 0.3
		cfg.Retrieval.MinSimilarity = &floor
	}
	if cfg.RateLimit.MaxRequests == 0 {
		cfg.RateLimit.MaxRequests = 30
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.RateLimit.Store == "" {
		cfg.RateLimit.Store = "postgres"
	}
	if cfg.InputGuard.MaxChars == 0 {
		cfg.InputGuard.MaxChars = 2000
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 2
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = 64
	}
	if cfg.Ingest.TimeoutSeconds == 0 {
		cfg.Ingest.TimeoutSeconds = 300
	}
	if cfg.Jobs.ReembedBatch == 0 {
		cfg.Jobs.ReembedBatch = 100
	}
}
