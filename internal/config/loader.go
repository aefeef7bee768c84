// Package config provides configuration loading for ragd.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (QDRANT_HOST, EMBEDDINGS_BASE_URL, ...)
//  2. YAML config file (~/.config/ragd/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path is used. Only files under ~/.config/ragd/ or /etc/ragd/ are
// accepted, they must not be world-readable, and they must stay under 1MB.
//
// Environment variables are mapped by splitting on the first underscore:
//
//	SERVER_PORT          -> server.port
//	QDRANT_REQUEST_TIMEOUT -> qdrant.request_timeout
//	EMBEDDINGS_BASE_URL  -> embeddings.base_url
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "ragd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the file descriptor to avoid a
		// TOCTOU race between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envTransform maps SECTION_FIELD_NAME to section.field_name. The split
// happens on the first underscore only, so field names keep theirs.
func envTransform(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so they cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Keep absPath so paths that don't exist yet still validate.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "ragd"),
		"/etc/ragd",
	}

	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/ragd/ or /etc/ragd/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 * 1024 * 1024 // 20MB
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.RequestTimeout == 0 {
		cfg.Qdrant.RequestTimeout = 30 * time.Second
	}
	if cfg.Qdrant.RetryAttempts == 0 {
		cfg.Qdrant.RetryAttempts = 3
	}

	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "ragd_chunks"
	}
	if cfg.VectorStore.VectorSize == 0 {
		cfg.VectorStore.VectorSize = 1536 // text-embedding-ada-002
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api.openai.com"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-ada-002"
	}

	if cfg.Chat.DefaultBackend == "" {
		cfg.Chat.DefaultBackend = "openai"
	}
	if cfg.Chat.DefaultTemperature == 0 {
		cfg.Chat.DefaultTemperature = 0.7
	}
	if cfg.Chat.Backends == nil {
		cfg.Chat.Backends = map[string]BackendConfig{}
	}
	if _, ok := cfg.Chat.Backends["openai"]; !ok {
		cfg.Chat.Backends["openai"] = BackendConfig{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o-mini",
			APIKey:  os.Getenv("OPENAI_API_KEY"),
		}
	}
	if _, ok := cfg.Chat.Backends["mistral"]; !ok {
		cfg.Chat.Backends["mistral"] = BackendConfig{
			BaseURL: "https://api.mistral.ai",
			Model:   "mistral-small-latest",
			APIKey:  os.Getenv("MISTRAL_API_KEY"),
		}
	}
	if _, ok := cfg.Chat.Backends["deepseek"]; !ok {
		cfg.Chat.Backends["deepseek"] = BackendConfig{
			BaseURL:         "https://api.deepseek.com",
			Model:           "deepseek-reasoner",
			APIKey:          os.Getenv("DEEPSEEK_API_KEY"),
			ReasoningMarker: "</think>",
		}
	}

	if cfg.RAG.SearchLimit == 0 {
		cfg.RAG.SearchLimit = 5
	}
	if cfg.RAG.PromptTemplate == "" {
		cfg.RAG.PromptTemplate = defaultPromptTemplate
	}
	if cfg.RAG.RewriteTemplate == "" {
		cfg.RAG.RewriteTemplate = defaultRewriteTemplate
	}
	if cfg.RAG.HydeTemplate == "" {
		cfg.RAG.HydeTemplate = defaultHydeTemplate
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkTolerance == 0 {
		cfg.Ingest.ChunkTolerance = 200
	}
}

const defaultPromptTemplate = `Answer the question using only the provided context.

Context:
{context}

Question: {question}

If the context does not contain the answer, say that you do not know.`

const defaultRewriteTemplate = `Rewrite the following question so that it retrieves the most relevant passages from a document index. Return only the rewritten question, nothing else.

Question: {question}`

const defaultHydeTemplate = `Write a short passage of roughly {length} characters that could plausibly appear in a document answering the question below. Return only the passage, nothing else.

Question: {question}`
