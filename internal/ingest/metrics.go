package ingest

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/ingest"

// Metrics instruments the ingestion pipeline.
type Metrics struct {
	documents metric.Int64Counter
	chunks    metric.Int64Counter
}

// NewMetrics creates ingestion metrics on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	documents, err := meter.Int64Counter(
		"ragd.ingest.documents",
		metric.WithDescription("Documents ingested, by outcome status"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating documents counter: %w", err)
	}

	chunks, err := meter.Int64Counter(
		"ragd.ingest.chunks",
		metric.WithDescription("Chunks processed, by outcome"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating chunks counter: %w", err)
	}

	return &Metrics{documents: documents, chunks: chunks}, nil
}

// RecordDocument records one ingested document and its chunk outcomes.
func (m *Metrics) RecordDocument(ctx context.Context, r *Result) {
	m.documents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(r.Status)),
	))
	m.chunks.Add(ctx, int64(r.Stored), metric.WithAttributes(attribute.String("outcome", "stored")))
	m.chunks.Add(ctx, int64(r.Skipped), metric.WithAttributes(attribute.String("outcome", "skipped")))
	m.chunks.Add(ctx, int64(r.Failed), metric.WithAttributes(attribute.String("outcome", "failed")))
}
