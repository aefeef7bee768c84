package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownBackend indicates the requested backend is not configured.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)

// CompleteOptions tunes one completion call.
type CompleteOptions struct {
	// Temperature is the sampling temperature.
	Temperature float64

	// ToolsEnabled advertises the tool registry to the model.
	ToolsEnabled bool
}

// Backend is one chat completion provider.
type Backend interface {
	// Name is the backend's registry name.
	Name() string

	// ReasoningMarker is the delimiter some models emit between an
	// internal reasoning block and the real answer. Empty when the model
	// has none.
	ReasoningMarker() string

	// Complete runs one completion. Tool-calling rounds happen inside;
	// only final assistant messages are returned. A nil slice with a nil
	// error means the backend produced no usable answer.
	Complete(ctx context.Context, messages []Message, opts CompleteOptions) ([]Message, error)
}

// Registry maps backend names to configured backends.
type Registry struct {
	backends    map[string]Backend
	defaultName string
}

// NewRegistry creates a registry. defaultName is used when a caller does
// not name a backend and must refer to one of the given backends.
func NewRegistry(defaultName string, backends ...Backend) (*Registry, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: at least one backend required", ErrInvalidConfig)
	}

	r := &Registry{
		backends:    make(map[string]Backend, len(backends)),
		defaultName: defaultName,
	}
	for _, backend := range backends {
		r.backends[backend.Name()] = backend
	}
	if _, ok := r.backends[defaultName]; !ok {
		return nil, fmt.Errorf("%w: default backend %q not configured", ErrInvalidConfig, defaultName)
	}
	return r, nil
}

// Get returns the named backend. An empty name selects the default.
func (r *Registry) Get(name string) (Backend, error) {
	if name == "" {
		name = r.defaultName
	}
	backend, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return backend, nil
}

// Names returns the configured backend names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
