// Package embeddings generates fixed-dimension vectors for text via an
// OpenAI-compatible embeddings endpoint.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingUnavailable indicates the provider was unreachable or
	// returned no data.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
)

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the base URL of the OpenAI-compatible API
	BaseURL string

	// Model is the embedding model to use
	Model string

	// APIKey is the API key (optional for self-hosted providers)
	APIKey string
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Service provides embedding generation functionality.
type Service struct {
	config  Config
	client  *http.Client
	metrics *Metrics
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &Service{
		config:  config,
		client:  &http.Client{Timeout: 60 * time.Second},
		metrics: NewMetrics(zap.NewNop()),
	}, nil
}

// embedRequest is the request body for the /v1/embeddings endpoint.
type embedRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"`
}

// embedResponse is the response body for the /v1/embeddings endpoint.
type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedDocuments generates embeddings for multiple texts. The returned
// vectors are ordered like the input.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	resp, err := s.post(ctx, texts)
	if err != nil {
		genErr = err
		return nil, genErr
	}

	if len(resp.Data) != len(texts) {
		genErr = fmt.Errorf("%w: got %d vectors for %d texts",
			ErrEmbeddingUnavailable, len(resp.Data), len(texts))
		return nil, genErr
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			genErr = fmt.Errorf("%w: vector index %d out of range", ErrEmbeddingUnavailable, item.Index)
			return nil, genErr
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	resp, err := s.post(ctx, text)
	if err != nil {
		genErr = err
		return nil, genErr
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		genErr = fmt.Errorf("%w: empty response", ErrEmbeddingUnavailable)
		return nil, genErr
	}
	return resp.Data[0].Embedding, nil
}

// post sends one embeddings request. input is a string or a []string.
func (s *Service) post(ctx context.Context, input interface{}) (*embedResponse, error) {
	body, err := json.Marshal(embedRequest{
		Model: s.config.Model,
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingUnavailable, resp.StatusCode, string(respBody))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &decoded, nil
}
