// Package config provides configuration loading for productqa.
//
// Configuration is read from an optional YAML file, then overridden by
// environment variables (optionally seeded from a .env file). Every section
// has defaults, so an empty environment yields a runnable local setup.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete productqa configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Catalog       CatalogConfig       `koanf:"catalog"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Generation    GenerationConfig    `koanf:"generation"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Answer        AnswerConfig        `koanf:"answer"`
	Ingest        IngestConfig        `koanf:"ingest"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds HTTP gateway configuration.
type ServerConfig struct {
	Host                  string        `koanf:"host"`
	Port                  int           `koanf:"http_port"`
	ShutdownTimeout       time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout        time.Duration `koanf:"request_timeout"`
	MaxConcurrentRequests int           `koanf:"max_concurrent_requests"`
	CORSOrigins           []string      `koanf:"cors_origins"`
	BodyLimit             string        `koanf:"body_limit"`
}

// CatalogConfig locates the product record source.
type CatalogConfig struct {
	Path  string `koanf:"path"`
	Table string `koanf:"table"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of: gemini, tei, openai, fastembed.
	Provider   string        `koanf:"provider"`
	Model      string        `koanf:"model"`
	BaseURL    string        `koanf:"base_url"`
	APIKey     Secret        `koanf:"api_key"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	RateLimit  float64       `koanf:"rate_limit"`
	// Dimension overrides the model's known dimension. Zero means auto.
	Dimension int    `koanf:"dimension"`
	CacheDir  string `koanf:"cache_dir"`
}

// GenerationConfig selects and tunes the generative model.
type GenerationConfig struct {
	// Provider is one of: gemini, openai.
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	APIKey      Secret        `koanf:"api_key"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  int           `koanf:"max_retries"`
	RateLimit   float64       `koanf:"rate_limit"`
	Temperature float64       `koanf:"temperature"`
}

// VectorStoreConfig selects the vector index backend.
type VectorStoreConfig struct {
	// Provider is one of: chromem, qdrant.
	Provider   string        `koanf:"provider"`
	Path       string        `koanf:"path"`
	Collection string        `koanf:"collection"`
	Compress   bool          `koanf:"compress"`
	QdrantHost string        `koanf:"qdrant_host"`
	QdrantPort int           `koanf:"qdrant_port"`
	QdrantTLS  bool          `koanf:"qdrant_tls"`
	QdrantKey  Secret        `koanf:"qdrant_api_key"`
	Timeout    time.Duration `koanf:"timeout"`
}

// RetrievalConfig makes the fetch-k/use-n policy explicit.
type RetrievalConfig struct {
	TopKFetch int `koanf:"top_k_fetch"`
	TopKUsed  int `koanf:"top_k_used"`
}

// AnswerConfig tunes the answer composer.
type AnswerConfig struct {
	// MaxWords hard-truncates generated answers when positive.
	MaxWords int `koanf:"max_words"`
}

// IngestConfig tunes the startup ingestion run.
type IngestConfig struct {
	Concurrency     int           `koanf:"concurrency"`
	DocumentTimeout time.Duration `koanf:"document_timeout"`
	// SkipOnStart disables the ingestion run when serving.
	SkipOnStart bool `koanf:"skip_on_start"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
	ServiceName     string `koanf:"service_name"`
}

// LoggingConfig holds the user-facing logging knobs.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

var (
	validEmbeddingProviders  = map[string]bool{"gemini": true, "tei": true, "openai": true, "fastembed": true}
	validGenerationProviders = map[string]bool{"gemini": true, "openai": true}
	validVectorProviders     = map[string]bool{"chromem": true, "qdrant": true}
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxConcurrentRequests < 1 {
		errs = append(errs, fmt.Errorf("server.max_concurrent_requests must be >= 1, got %d", c.Server.MaxConcurrentRequests))
	}
	if c.Catalog.Path == "" {
		errs = append(errs, errors.New("catalog.path is required"))
	}
	if !validEmbeddingProviders[c.Embeddings.Provider] {
		errs = append(errs, fmt.Errorf("embeddings.provider %q is not supported", c.Embeddings.Provider))
	}
	if !validGenerationProviders[c.Generation.Provider] {
		errs = append(errs, fmt.Errorf("generation.provider %q is not supported", c.Generation.Provider))
	}
	if !validVectorProviders[c.VectorStore.Provider] {
		errs = append(errs, fmt.Errorf("vectorstore.provider %q is not supported", c.VectorStore.Provider))
	}
	if c.Embeddings.MaxRetries < 0 || c.Generation.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries cannot be negative"))
	}
	if c.Retrieval.TopKFetch < 1 {
		errs = append(errs, fmt.Errorf("retrieval.top_k_fetch must be >= 1, got %d", c.Retrieval.TopKFetch))
	}
	if c.Retrieval.TopKUsed < 1 || c.Retrieval.TopKUsed > c.Retrieval.TopKFetch {
		errs = append(errs, fmt.Errorf("retrieval.top_k_used must be between 1 and top_k_fetch (%d), got %d",
			c.Retrieval.TopKFetch, c.Retrieval.TopKUsed))
	}
	if c.Answer.MaxWords < 0 {
		errs = append(errs, fmt.Errorf("answer.max_words cannot be negative, got %d", c.Answer.MaxWords))
	}
	if c.Ingest.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("ingest.concurrency must be >= 1, got %d", c.Ingest.Concurrency))
	}

	return errors.Join(errs...)
}
