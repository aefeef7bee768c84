// Package ingest turns raw document text into stored chunk records.
//
// A document flows through chunking, content-addressed identification,
// dedup against the vector store, embedding, and upsert. Failures are
// isolated per chunk: one bad chunk never aborts the rest of the
// document, and the result reports how far the ingestion got.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// ErrInvalidConfig indicates invalid configuration
var ErrInvalidConfig = errors.New("invalid configuration")

// Store is the slice of the vector store gateway ingestion needs.
type Store interface {
	EnsureCollection(ctx context.Context) error
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, id string, vector []float32, text, sourceFilename string) error
}

// Embedder produces embedding vectors for document chunks.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Identifier derives a deterministic record id from chunk content.
type Identifier interface {
	ForContent(content string) string
}

// Status summarizes how a document ingestion went.
type Status string

const (
	// StatusSuccess means every chunk was stored or was already present.
	StatusSuccess Status = "success"

	// StatusSuccessPartial means some chunks were stored and some failed.
	StatusSuccessPartial Status = "success_partial"

	// StatusFailedAllChunks means every chunk failed to embed or store.
	StatusFailedAllChunks Status = "failed_all_chunks"

	// StatusNoChunksProcessed means chunking produced nothing to store.
	StatusNoChunksProcessed Status = "no_chunks_processed"

	// StatusSkippedBlankText means the document had no text to ingest.
	StatusSkippedBlankText Status = "skipped_blank_text"
)

// Result reports the outcome of ingesting one document.
type Result struct {
	Status  Status
	Chunks  int
	Stored  int
	Skipped int
	Failed  int
}

// Config controls chunking.
type Config struct {
	// ChunkSize is the target chunk size in runes.
	ChunkSize int

	// Tolerance is the overflow allowed to finish a sentence.
	Tolerance int
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service runs the ingestion pipeline.
type Service struct {
	store    Store
	embedder Embedder
	ids      Identifier
	config   Config
	logger   *logging.Logger
	metrics  *Metrics
}

// NewService creates the ingestion service.
func NewService(store Store, embedder Embedder, ids Identifier, config Config, logger *logging.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store required", ErrInvalidConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrInvalidConfig)
	}
	if ids == nil {
		return nil, fmt.Errorf("%w: identifier required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	return &Service{
		store:    store,
		embedder: embedder,
		ids:      ids,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Ingest chunks, embeds, and stores one document. sourceFilename tags the
// stored records for filtered retrieval; it may be empty.
//
// Chunks already present in the store are skipped, so re-ingesting the
// same document is cheap and idempotent. A chunk whose embedding or
// upsert fails is counted and skipped; the remaining chunks still go
// through.
//
// The collection is created lazily, once, before the first chunk is
// stored: a document whose chunks all dedup away or fail to embed never
// triggers collection bootstrap. A bootstrap failure aborts the
// ingestion with an error.
func (s *Service) Ingest(ctx context.Context, text, sourceFilename string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		s.logger.Warn(ctx, "skipping ingestion of blank document",
			zap.String("source_filename", sourceFilename))
		result := &Result{Status: StatusSkippedBlankText}
		s.metrics.RecordDocument(ctx, result)
		return result, nil
	}

	chunks := chunker.Split(text, s.config.ChunkSize, s.config.Tolerance)
	if len(chunks) == 0 {
		result := &Result{Status: StatusNoChunksProcessed}
		s.metrics.RecordDocument(ctx, result)
		return result, nil
	}

	result := &Result{Chunks: len(chunks)}
	collectionReady := false
	for i, chunk := range chunks {
		id := s.ids.ForContent(chunk)

		exists, err := s.store.Exists(ctx, id)
		if err != nil {
			s.logger.Warn(ctx, "chunk existence check failed",
				zap.String("chunk_id", id),
				zap.Int("chunk_index", i),
				zap.Error(err))
			result.Failed++
			continue
		}
		if exists {
			s.logger.Debug(ctx, "chunk already stored, skipping",
				zap.String("chunk_id", id),
				zap.Int("chunk_index", i))
			result.Skipped++
			continue
		}

		vectors, err := s.embedder.EmbedDocuments(ctx, []string{chunk})
		if err != nil || len(vectors) != 1 {
			s.logger.Warn(ctx, "chunk embedding failed",
				zap.String("chunk_id", id),
				zap.Int("chunk_index", i),
				zap.Error(err))
			result.Failed++
			continue
		}

		if !collectionReady {
			if err := s.store.EnsureCollection(ctx); err != nil {
				return nil, fmt.Errorf("ensuring collection: %w", err)
			}
			collectionReady = true
		}

		if err := s.store.Upsert(ctx, id, vectors[0], chunk, sourceFilename); err != nil {
			s.logger.Warn(ctx, "chunk upsert failed",
				zap.String("chunk_id", id),
				zap.Int("chunk_index", i),
				zap.Error(err))
			result.Failed++
			continue
		}
		result.Stored++
	}

	result.Status = statusFor(result)
	s.metrics.RecordDocument(ctx, result)

	s.logger.Info(ctx, "document ingested",
		zap.String("source_filename", sourceFilename),
		zap.String("status", string(result.Status)),
		zap.Int("chunks", result.Chunks),
		zap.Int("stored", result.Stored),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))

	return result, nil
}

func statusFor(r *Result) Status {
	switch {
	case r.Failed == 0:
		return StatusSuccess
	case r.Failed == r.Chunks:
		return StatusFailedAllChunks
	default:
		return StatusSuccessPartial
	}
}
