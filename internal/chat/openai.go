package chat

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

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/tools"
)

// ErrBackendUnavailable indicates the provider was unreachable or rejected
// the completion request.
var ErrBackendUnavailable = errors.New("chat backend unavailable")

// maxToolRounds bounds the tool-calling loop so a model that keeps asking
// for tools cannot spin forever.
const maxToolRounds = 5

// OpenAIConfig configures one OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	// Name is the registry name, e.g. "openai", "mistral", "deepseek".
	Name string

	// BaseURL is the base URL of the OpenAI-compatible API.
	BaseURL string

	// Model is the chat model to use.
	Model string

	// APIKey is the API key (optional for self-hosted providers).
	APIKey string

	// ReasoningMarker, when set, delimits an internal reasoning block the
	// model emits before the real answer.
	ReasoningMarker string
}

// Validate validates the configuration.
func (c OpenAIConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: backend name required", ErrInvalidConfig)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// OpenAIBackend talks to an OpenAI-compatible /v1/chat/completions
// endpoint and runs model tool calls against a tool registry.
type OpenAIBackend struct {
	config   OpenAIConfig
	client   *http.Client
	registry *tools.Registry
	logger   *logging.Logger
}

// NewOpenAIBackend creates a backend. registry may be nil to disable tool
// calling regardless of CompleteOptions.
func NewOpenAIBackend(config OpenAIConfig, registry *tools.Registry, logger *logging.Logger) (*OpenAIBackend, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &OpenAIBackend{
		config:   config,
		client:   &http.Client{Timeout: 120 * time.Second},
		registry: registry,
		logger:   logger,
	}, nil
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return b.config.Name }

// ReasoningMarker implements Backend.
func (b *OpenAIBackend) ReasoningMarker() string { return b.config.ReasoningMarker }

// Wire format of the chat completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type chatChoice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Complete implements Backend. Tool-call rounds are resolved internally;
// the returned messages are the model's final assistant turns only.
func (b *OpenAIBackend) Complete(ctx context.Context, messages []Message, opts CompleteOptions) ([]Message, error) {
	wire := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	var toolDefs []wireTool
	if opts.ToolsEnabled && b.registry != nil {
		for _, tool := range b.registry.List() {
			toolDefs = append(toolDefs, wireTool{
				Type: "function",
				Function: wireFunction{
					Name:        tool.Name(),
					Description: tool.Description(),
					Parameters:  tool.Parameters(),
				},
			})
		}
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := b.post(ctx, chatRequest{
			Model:       b.config.Model,
			Messages:    wire,
			Temperature: opts.Temperature,
			Tools:       toolDefs,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, nil
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			var out []Message
			for _, choice := range resp.Choices {
				if choice.Message.Content != "" {
					out = append(out, Message{Role: RoleAssistant, Content: choice.Message.Content})
				}
			}
			return out, nil
		}

		// Intermediate tool round: execute each requested call and feed
		// the results back, then ask the model again.
		wire = append(wire, msg)
		for _, call := range msg.ToolCalls {
			wire = append(wire, wireMessage{
				Role:       string(RoleTool),
				Content:    b.runTool(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}

	return nil, fmt.Errorf("%w: tool call limit exceeded", ErrBackendUnavailable)
}

func (b *OpenAIBackend) runTool(ctx context.Context, call wireToolCall) string {
	b.logger.Debug(ctx, "executing tool call",
		zap.String("backend", b.config.Name),
		zap.String("tool", call.Function.Name))

	if b.registry == nil {
		return fmt.Sprintf("Tool %q is not available.", call.Function.Name)
	}
	tool, ok := b.registry.Get(call.Function.Name)
	if !ok {
		return fmt.Sprintf("Tool %q is not available.", call.Function.Name)
	}

	result, err := tool.Call(ctx, call.Function.Arguments)
	if err != nil {
		b.logger.Warn(ctx, "tool call failed",
			zap.String("tool", call.Function.Name),
			zap.Error(err))
		return fmt.Sprintf("Tool %q failed: %v", call.Function.Name, err)
	}
	return result
}

func (b *OpenAIBackend) post(ctx context.Context, req chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", b.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(respBody))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &decoded, nil
}
