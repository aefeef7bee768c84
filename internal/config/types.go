package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for ragd.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Chat        ChatConfig        `koanf:"chat"`
	RAG         RAGConfig         `koanf:"rag"`
	Ingest      IngestConfig      `koanf:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxUploadBytes bounds document upload size.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// LoggingConfig holds logging settings. Level is parsed by the logging
// package and supports "trace".
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	UseTLS         bool          `koanf:"use_tls"`
	APIKey         string        `koanf:"api_key"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	RetryAttempts  int           `koanf:"retry_attempts"`
}

// VectorStoreConfig describes the single logical collection ragd owns.
type VectorStoreConfig struct {
	Collection string `koanf:"collection"`
	VectorSize uint64 `koanf:"vector_size"`
}

// EmbeddingsConfig holds the embedding provider settings. The endpoint is
// OpenAI-compatible (/v1/embeddings).
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
}

// ChatConfig holds chat backend settings.
type ChatConfig struct {
	DefaultBackend     string                   `koanf:"default_backend"`
	DefaultTemperature float64                  `koanf:"default_temperature"`
	Backends           map[string]BackendConfig `koanf:"backends"`
}

// BackendConfig describes one OpenAI-compatible chat completion backend.
type BackendConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
	// ReasoningMarker, when set, marks the end of an internal reasoning
	// block that must be stripped from responses (e.g. "</think>").
	ReasoningMarker string `koanf:"reasoning_marker"`
}

// RAGConfig holds retrieval orchestration settings. Templates use
// {context}, {question} and {length} placeholders.
type RAGConfig struct {
	SearchLimit     int    `koanf:"search_limit"`
	PromptTemplate  string `koanf:"prompt_template"`
	RewriteTemplate string `koanf:"rewrite_template"`
	HydeTemplate    string `koanf:"hyde_template"`
}

// IngestConfig holds document ingestion settings.
type IngestConfig struct {
	ChunkSize      int `koanf:"chunk_size"`
	ChunkTolerance int `koanf:"chunk_tolerance"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0")
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("qdrant.host is required")
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("qdrant.port out of range: %d", c.Qdrant.Port)
	}
	if c.VectorStore.Collection == "" {
		return fmt.Errorf("vectorstore.collection is required")
	}
	if c.VectorStore.VectorSize == 0 {
		return fmt.Errorf("vectorstore.vector_size must be > 0")
	}
	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings.base_url is required")
	}
	if c.Chat.DefaultBackend == "" {
		return fmt.Errorf("chat.default_backend is required")
	}
	if _, ok := c.Chat.Backends[c.Chat.DefaultBackend]; !ok {
		return fmt.Errorf("chat.default_backend %q has no backend entry", c.Chat.DefaultBackend)
	}
	if c.Chat.DefaultTemperature < 0 || c.Chat.DefaultTemperature > 2 {
		return fmt.Errorf("chat.default_temperature out of range: %v", c.Chat.DefaultTemperature)
	}
	for name, b := range c.Chat.Backends {
		if b.BaseURL == "" {
			return fmt.Errorf("chat.backends.%s.base_url is required", name)
		}
		if b.Model == "" {
			return fmt.Errorf("chat.backends.%s.model is required", name)
		}
	}
	if c.RAG.SearchLimit <= 0 {
		return fmt.Errorf("rag.search_limit must be > 0")
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be > 0")
	}
	if c.Ingest.ChunkTolerance < 0 {
		return fmt.Errorf("ingest.chunk_tolerance must be >= 0")
	}
	return nil
}
