// Package identity derives deterministic identifiers for chunk content.
//
// Identifiers are name-based UUIDs (RFC 4122 version 3) computed over the
// UTF-8 bytes of the content. The same content always maps to the same
// identifier on every machine and across restarts, which is what makes
// idempotent upserts and dedup skips possible.
package identity

import (
	"crypto/md5"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Generator produces content-addressed identifiers.
type Generator struct {
	logger *zap.Logger
}

// NewGenerator creates a Generator. logger may be nil.
func NewGenerator(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger}
}

// ForContent returns the deterministic UUID string for content.
//
// Empty content has no stable identity to derive from; a random UUID is
// returned instead and the degraded condition is logged, since that one
// record loses dedup.
func (g *Generator) ForContent(content string) string {
	if content == "" {
		g.logger.Warn("content for id generation is empty, falling back to random id")
		return uuid.NewString()
	}

	sum := md5.Sum([]byte(content))
	id, err := uuid.FromBytes(sum[:])
	if err != nil {
		g.logger.Error("failed to derive content id, falling back to random id",
			zap.Error(err))
		return uuid.NewString()
	}

	// Stamp version 3 and the RFC 4122 variant onto the raw digest.
	id[6] = (id[6] & 0x0f) | 0x30
	id[8] = (id[8] & 0x3f) | 0x80
	return id.String()
}
