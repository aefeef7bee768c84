// Package chat dispatches conversation turns to OpenAI-compatible chat
// completion backends, with per-session histories and model tool calling.
package chat

import "sync"

// Role identifies the author of a message.
type Role string

// Message roles on the chat completions wire format.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// History is an ordered, mutex-guarded conversation transcript. Histories
// are per conversation, never shared across sessions; internal pipeline
// turns that must not pollute the visible conversation use a fresh one.
type History struct {
	mu       sync.Mutex
	messages []Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds messages to the end of the transcript.
func (h *History) Append(messages ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, messages...)
}

// Messages returns a copy of the transcript.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// SessionStore hands out conversation histories keyed by session id.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*History
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*History)}
}

// Get returns the history for the session, creating it on first use.
func (s *SessionStore) Get(sessionID string) *History {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := s.sessions[sessionID]
	if !ok {
		history = NewHistory()
		s.sessions[sessionID] = history
	}
	return history
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
