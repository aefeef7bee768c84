// Package vectorstore is the gateway to the single logical collection of
// chunk records ragd owns.
//
// It wraps the qdrant client with the collection lifecycle (lazy,
// idempotent creation), point existence checks for dedup, upserts, and
// filtered similarity search. A missing collection is never an error on
// read paths: Exists reports false and Search returns no results, which is
// exactly the state before the first ingestion.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/qdrant"
	"go.uber.org/zap"
)

// Payload keys of a stored chunk record.
const (
	payloadText           = "text"
	payloadSourceFilename = "source_filename"
)

var (
	// ErrStoreUnavailable indicates the vector store is unreachable or a
	// write-path operation genuinely failed.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config describes the collection the gateway owns.
type Config struct {
	// Collection is the collection name.
	Collection string

	// VectorSize is the embedding dimension. Must match the embedding
	// provider.
	VectorSize uint64
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// SearchResult is one similarity search hit.
type SearchResult struct {
	ID             string
	Score          float32
	Text           string
	SourceFilename string
}

// Service provides access to the chunk record collection.
type Service struct {
	client qdrant.Client
	config Config
	logger *logging.Logger
}

// NewService creates the gateway.
func NewService(client qdrant.Client, config Config, logger *logging.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: qdrant client required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Service{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// EnsureCollection creates the collection if it does not exist yet.
// Losing the create race to a concurrent caller counts as success.
func (s *Service) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", ErrStoreUnavailable, err)
	}
	if exists {
		s.logger.Debug(ctx, "collection already exists",
			zap.String("collection", s.config.Collection))
		return nil
	}

	s.logger.Info(ctx, "creating collection",
		zap.String("collection", s.config.Collection),
		zap.Uint64("vector_size", s.config.VectorSize))

	if err := s.client.CreateCollection(ctx, s.config.Collection, s.config.VectorSize); err != nil {
		if qdrant.IsAlreadyExists(err) {
			s.logger.Debug(ctx, "collection created concurrently",
				zap.String("collection", s.config.Collection))
			return nil
		}
		return fmt.Errorf("%w: creating collection: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Exists reports whether a record with the given id is already stored.
// A missing collection means nothing is stored yet, so it reports false.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	points, err := s.client.Get(ctx, s.config.Collection, []string{id}, false)
	if err != nil {
		if qdrant.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: point lookup: %v", ErrStoreUnavailable, err)
	}
	return len(points) > 0, nil
}

// Upsert stores a chunk record. Callers must have run EnsureCollection
// first. Records are content-addressed, so upserting an existing id
// replaces it with identical data.
func (s *Service) Upsert(ctx context.Context, id string, vector []float32, text, sourceFilename string) error {
	payload := map[string]interface{}{
		payloadText: text,
	}
	if sourceFilename != "" {
		payload[payloadSourceFilename] = sourceFilename
	}

	point := &qdrant.Point{
		ID:      id,
		Vector:  vector,
		Payload: payload,
	}

	if err := s.client.Upsert(ctx, s.config.Collection, []*qdrant.Point{point}); err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Search runs nearest-neighbor search, highest similarity first. A
// non-empty sourceFilename scopes results to one source document. A
// missing collection yields no results rather than an error.
func (s *Service) Search(ctx context.Context, vector []float32, limit int, sourceFilename string) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidConfig)
	}

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: checking collection: %v", ErrStoreUnavailable, err)
	}
	if !exists {
		s.logger.Debug(ctx, "search on missing collection",
			zap.String("collection", s.config.Collection))
		return nil, nil
	}

	var filter *qdrant.Filter
	if sourceFilename != "" {
		filter = qdrant.MatchKeyword(payloadSourceFilename, sourceFilename)
	}

	points, err := s.client.Query(ctx, s.config.Collection, qdrant.QueryParams{
		Vector:      vector,
		Limit:       uint64(limit),
		Filter:      filter,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStoreUnavailable, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		result := SearchResult{
			ID:    p.ID,
			Score: p.Score,
		}
		if text, ok := p.Payload[payloadText].(string); ok {
			result.Text = text
		}
		if name, ok := p.Payload[payloadSourceFilename].(string); ok {
			result.SourceFilename = name
		}
		results = append(results, result)
	}
	return results, nil
}

// Health checks the underlying store connection.
func (s *Service) Health(ctx context.Context) error {
	if err := s.client.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
