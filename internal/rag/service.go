// Package rag orchestrates retrieval-augmented answers: query rewriting,
// hypothetical document generation, filtered vector search, context
// assembly, and prompt augmentation, with a direct-chat fallback path.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chat"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var (
	// ErrBlankQuestion indicates an empty question.
	ErrBlankQuestion = errors.New("question must not be blank")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)

// contextDelimiter separates retrieved chunks in the assembled context.
const contextDelimiter = "\n---\n"

// Responder runs conversation turns. Implemented by chat.Dispatcher.
type Responder interface {
	Respond(ctx context.Context, prompt string, temperature float64, backendName string, history *chat.History) (string, error)
}

// QueryEmbedder embeds retrieval queries.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs filtered similarity search. Implemented by the vector
// store gateway.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int, sourceFilename string) ([]vectorstore.SearchResult, error)
}

// Config holds the orchestrator's templates and retrieval tuning.
type Config struct {
	// PromptTemplate is the augmentation template with {context} and
	// {question} placeholders.
	PromptTemplate string

	// RewriteTemplate asks the model to restate a question for better
	// retrieval. Placeholder: {question}.
	RewriteTemplate string

	// HydeTemplate asks the model for a hypothetical source passage.
	// Placeholders: {length} and {question}.
	HydeTemplate string

	// SearchLimit is the retrieval top-K.
	SearchLimit int

	// ChunkSize is the ingestion chunk size; the hypothetical document
	// length target is a quarter of it.
	ChunkSize int

	// DefaultTemperature is used when a request does not set one.
	DefaultTemperature float64
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.PromptTemplate == "" || c.RewriteTemplate == "" || c.HydeTemplate == "" {
		return fmt.Errorf("%w: all templates required", ErrInvalidConfig)
	}
	if !strings.Contains(c.PromptTemplate, "{context}") || !strings.Contains(c.PromptTemplate, "{question}") {
		return fmt.Errorf("%w: prompt template must contain {context} and {question}", ErrInvalidConfig)
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("%w: search limit must be positive", ErrInvalidConfig)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	return nil
}

// Request is one answer request.
type Request struct {
	// Question is the user's question. Required.
	Question string

	// Backend names the chat backend; empty selects the default.
	Backend string

	// Temperature overrides the default sampling temperature.
	Temperature *float64

	// SourceFilename scopes retrieval to one ingested document.
	// Empty disables retrieval and answers in plain chat mode.
	SourceFilename string

	// History is the conversation the answer belongs to. A nil history
	// makes the turn standalone.
	History *chat.History
}

// Response is the produced answer.
type Response struct {
	// Answer is the final text.
	Answer string

	// Retrieved is the number of chunks used as context. Zero in plain
	// chat mode and on the no-results fallback.
	Retrieved int
}

// Service is the retrieval orchestrator.
type Service struct {
	chat     Responder
	embedder QueryEmbedder
	store    Searcher
	config   Config
	logger   *logging.Logger
}

// NewService creates the orchestrator.
func NewService(responder Responder, embedder QueryEmbedder, store Searcher, config Config, logger *logging.Logger) (*Service, error) {
	if responder == nil {
		return nil, fmt.Errorf("%w: responder required", ErrInvalidConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: searcher required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Service{
		chat:     responder,
		embedder: embedder,
		store:    store,
		config:   config,
		logger:   logger,
	}, nil
}

// Answer produces an answer for the request.
//
// Without a source filename the question goes straight to the chat
// backend. With one, the question is rewritten and expanded into a
// hypothetical source passage (each in an isolated turn that never touches
// the request's history, falling back to its input on failure), the
// passage is embedded and searched scoped to the document, and the hits
// are folded into the prompt template. No search hits means the original
// question is answered directly rather than erroring. Embedding, search,
// and final-dispatch failures surface as errors.
func (s *Service) Answer(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrBlankQuestion
	}

	temperature := s.config.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	history := req.History
	if history == nil {
		history = chat.NewHistory()
	}

	if req.SourceFilename == "" {
		answer, err := s.chat.Respond(ctx, req.Question, temperature, req.Backend, history)
		if err != nil {
			return nil, err
		}
		return &Response{Answer: answer}, nil
	}

	rewritten := s.rewrite(ctx, req)
	hypothetical := s.hypothesize(ctx, req.Backend, rewritten)

	vector, err := s.embedder.EmbedQuery(ctx, hypothetical)
	if err != nil {
		return nil, fmt.Errorf("embedding retrieval query: %w", err)
	}

	results, err := s.store.Search(ctx, vector, s.config.SearchLimit, req.SourceFilename)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	if len(results) == 0 {
		s.logger.Info(ctx, "no chunks retrieved, answering directly",
			zap.String("source_filename", req.SourceFilename))
		answer, err := s.chat.Respond(ctx, req.Question, temperature, req.Backend, history)
		if err != nil {
			return nil, err
		}
		return &Response{Answer: answer}, nil
	}

	prompt := render(s.config.PromptTemplate, map[string]string{
		"context":  assembleContext(results),
		"question": req.Question,
	})

	answer, err := s.chat.Respond(ctx, prompt, temperature, req.Backend, history)
	if err != nil {
		return nil, err
	}
	return &Response{Answer: answer, Retrieved: len(results)}, nil
}

// Retrieve embeds the query as given and returns the matching chunks,
// optionally scoped to one ingested document. Unlike Answer it skips the
// rewrite and hypothetical-document stages and never calls a chat
// backend; it exists to inspect what retrieval would feed the prompt.
// A non-positive limit falls back to the configured search limit.
func (s *Service) Retrieve(ctx context.Context, query string, limit int, sourceFilename string) ([]vectorstore.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrBlankQuestion
	}
	if limit <= 0 {
		limit = s.config.SearchLimit
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding retrieval query: %w", err)
	}

	results, err := s.store.Search(ctx, vector, limit, sourceFilename)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	return results, nil
}

// rewrite restates the question for retrieval in an isolated turn. Any
// failure falls back to the original question. The dispatcher's
// unavailable sentinel counts as a failure here: it must never be
// embedded as if it were a rewritten question.
func (s *Service) rewrite(ctx context.Context, req Request) string {
	prompt := render(s.config.RewriteTemplate, map[string]string{"question": req.Question})
	text, err := s.chat.Respond(ctx, prompt, 0, req.Backend, chat.NewHistory())
	if err != nil || text == chat.UnavailableMessage || strings.TrimSpace(text) == "" {
		s.logger.Warn(ctx, "query rewrite failed, using original question", zap.Error(err))
		return req.Question
	}
	return text
}

// hypothesize drafts a hypothetical source passage for the rewritten
// question in an isolated turn. Any failure, including the unavailable
// sentinel, falls back to the rewritten question itself.
func (s *Service) hypothesize(ctx context.Context, backend, rewritten string) string {
	prompt := render(s.config.HydeTemplate, map[string]string{
		"length":   strconv.Itoa(s.config.ChunkSize / 4),
		"question": rewritten,
	})
	text, err := s.chat.Respond(ctx, prompt, 0, backend, chat.NewHistory())
	if err != nil || text == chat.UnavailableMessage || strings.TrimSpace(text) == "" {
		s.logger.Warn(ctx, "hypothetical document generation failed, embedding rewritten question", zap.Error(err))
		return rewritten
	}
	return text
}

// assembleContext joins retrieved chunks in descending similarity order,
// tagging each with its source document when known.
func assembleContext(results []vectorstore.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.SourceFilename != "" {
			parts = append(parts, fmt.Sprintf("Source: %s\nContent: %s", r.SourceFilename, r.Text))
		} else {
			parts = append(parts, r.Text)
		}
	}
	return strings.Join(parts, contextDelimiter)
}

func render(template string, values map[string]string) string {
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}
