// Package qdrant provides a thin client for the Qdrant vector database
// over gRPC.
package qdrant

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Client is the interface to Qdrant used by the vector store gateway.
type Client interface {
	// Collection operations
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	CollectionExists(ctx context.Context, name string) (bool, error)

	// Point operations
	Upsert(ctx context.Context, collection string, points []*Point) error
	Get(ctx context.Context, collection string, ids []string, withPayload bool) ([]*Point, error)
	Query(ctx context.Context, collection string, params QueryParams) ([]*ScoredPoint, error)

	// Health
	Health(ctx context.Context) error

	// Close closes the client connection
	Close() error
}

// Point represents a vector point in Qdrant.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint represents a search result with score.
type ScoredPoint struct {
	Point
	Score float32
}

// QueryParams describes a nearest-neighbor query.
type QueryParams struct {
	Vector      []float32
	Limit       uint64
	Filter      *Filter
	WithPayload bool
	WithVectors bool
}

// Filter represents a filter for search operations.
type Filter struct {
	Must    []Condition
	Should  []Condition
	MustNot []Condition
}

// Condition represents a keyword-match filter condition on a payload key.
type Condition struct {
	Field string
	Match string
}

// MatchKeyword builds a filter requiring an exact keyword match on field.
func MatchKeyword(field, keyword string) *Filter {
	return &Filter{Must: []Condition{{Field: field, Match: keyword}}}
}

// IsNotFound reports whether err is a gRPC NotFound error, which Qdrant
// returns for missing collections and points.
func IsNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.NotFound
}

// IsAlreadyExists reports whether err is a gRPC AlreadyExists error.
// Losing a create-collection race surfaces as this code.
func IsAlreadyExists(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.AlreadyExists
}
