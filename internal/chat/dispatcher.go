package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// UnavailableMessage is returned when a backend produces no usable
// answer. Exported so callers running single-use turns can tell it apart
// from a real answer.
const UnavailableMessage = "Sorry the AI agent is not available at the moment, Try Again later!"

// Dispatcher runs conversation turns against a backend registry.
type Dispatcher struct {
	backends *Registry
	logger   *logging.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(backends *Registry, logger *logging.Logger) (*Dispatcher, error) {
	if backends == nil {
		return nil, fmt.Errorf("%w: backend registry required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{backends: backends, logger: logger}, nil
}

// Backends returns the backend registry.
func (d *Dispatcher) Backends() *Registry { return d.backends }

// Respond runs one conversation turn on history: it appends the user
// prompt, completes against the named backend (empty name selects the
// default) with tools enabled, and appends the answer.
//
// Simultaneous assistant messages are joined with a single space. When the
// backend emits a reasoning block, everything up to and including its
// marker is stripped. A backend that yields no usable answer produces a
// fixed unavailable message, not an error; transport failures do surface
// as errors.
func (d *Dispatcher) Respond(ctx context.Context, prompt string, temperature float64, backendName string, history *History) (string, error) {
	backend, err := d.backends.Get(backendName)
	if err != nil {
		return "", err
	}

	history.Append(Message{Role: RoleUser, Content: prompt})

	replies, err := backend.Complete(ctx, history.Messages(), CompleteOptions{
		Temperature:  temperature,
		ToolsEnabled: true,
	})
	if err != nil {
		return "", fmt.Errorf("completing with backend %q: %w", backend.Name(), err)
	}

	parts := make([]string, 0, len(replies))
	for _, reply := range replies {
		if reply.Role == RoleAssistant && reply.Content != "" {
			parts = append(parts, reply.Content)
		}
	}
	text := strings.Join(parts, " ")

	if marker := backend.ReasoningMarker(); marker != "" {
		if idx := strings.Index(text, marker); idx >= 0 {
			text = strings.TrimSpace(text[idx+len(marker):])
		}
	}

	if text == "" {
		d.logger.Warn(ctx, "backend produced no usable answer",
			zap.String("backend", backend.Name()))
		text = UnavailableMessage
	}

	history.Append(Message{Role: RoleAssistant, Content: text})
	return text, nil
}
