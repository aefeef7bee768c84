package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, uint64(1536), cfg.VectorStore.VectorSize)
	assert.Equal(t, "text-embedding-ada-002", cfg.Embeddings.Model)
	assert.Equal(t, 5, cfg.RAG.SearchLimit)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)

	// The three backend presets must be present.
	for _, name := range []string{"openai", "mistral", "deepseek"} {
		assert.Contains(t, cfg.Chat.Backends, name)
	}
	assert.Equal(t, "</think>", cfg.Chat.Backends["deepseek"].ReasoningMarker)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "missing qdrant host",
			mutate:  func(c *Config) { c.Qdrant.Host = "" },
			wantErr: "qdrant.host",
		},
		{
			name:    "missing collection",
			mutate:  func(c *Config) { c.VectorStore.Collection = "" },
			wantErr: "vectorstore.collection",
		},
		{
			name:    "zero vector size",
			mutate:  func(c *Config) { c.VectorStore.VectorSize = 0 },
			wantErr: "vector_size",
		},
		{
			name:    "unknown default backend",
			mutate:  func(c *Config) { c.Chat.DefaultBackend = "claude" },
			wantErr: "default_backend",
		},
		{
			name: "backend without model",
			mutate: func(c *Config) {
				c.Chat.Backends["openai"] = BackendConfig{BaseURL: "https://api.openai.com"}
			},
			wantErr: "model",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Chat.DefaultTemperature = 3 },
			wantErr: "temperature",
		},
		{
			name:    "negative tolerance",
			mutate:  func(c *Config) { c.Ingest.ChunkTolerance = -1 },
			wantErr: "chunk_tolerance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_PORT", "server.port"},
		{"QDRANT_REQUEST_TIMEOUT", "qdrant.request_timeout"},
		{"EMBEDDINGS_BASE_URL", "embeddings.base_url"},
		{"RAG_SEARCH_LIMIT", "rag.search_limit"},
		{"PORT", "port"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, envTransform(tt.in), tt.in)
	}
}
