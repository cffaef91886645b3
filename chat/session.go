package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// ErrSessionNotFound is returned by a SessionStore for an unknown session.
var ErrSessionNotFound = errors.New("chat: session not found")

// SessionStore persists conversations by session id.
type SessionStore interface {
	Load(ctx context.Context, id string) ([]Message, error)
	Save(ctx context.Context, id string, messages []Message) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process SessionStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Message)}
}

func (s *MemoryStore) Load(_ context.Context, id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneMessages(messages), nil
}

func (s *MemoryStore) Save(_ context.Context, id string, messages []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = cloneMessages(messages)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func cloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i := range messages {
		out[i] = *messages[i].Clone()
	}
	return out
}

// Session is one conversation owned by its caller. Concurrent sessions never
// share state; the methods of a single Session are safe for concurrent use.
type Session struct {
	ID string

	mu       sync.Mutex
	messages []Message
	store    SessionStore

	// progressed is set when the last turn or tool result moved the
	// conversation forward.
	progressed bool
}

// NewSession creates an empty session backed by store. A nil store keeps the
// session in memory only.
func NewSession(id string, store SessionStore) *Session {
	return &Session{ID: id, store: store}
}

// LoadSession restores a session from store. An unknown id yields an empty
// session.
func LoadSession(ctx context.Context, id string, store SessionStore) (*Session, error) {
	messages, err := store.Load(ctx, id)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &Session{ID: id, messages: messages, store: store}, nil
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

// Append adds messages to the end of the conversation.
func (s *Session) Append(messages ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, cloneMessages(messages)...)
}

// LastAssistantMessage returns a copy of the last message when it is an
// assistant message.
func (s *Session) LastAssistantMessage() *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == llmprovider.RoleAssistant {
		return s.messages[n-1].Clone()
	}
	return nil
}

// Apply merges a snapshot into the conversation. The snapshot replaces the
// last message when it continues it or carries the same id, and is appended
// otherwise.
func (s *Session) Apply(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := *snap.Message.Clone()
	n := len(s.messages)
	if n > 0 && (snap.ReplaceLastMessage || s.messages[n-1].ID == msg.ID) {
		s.messages[n-1] = msg
		return
	}
	s.messages = append(s.messages, msg)
}

// AddToolResult records the result of a client-side tool call on the last
// assistant message.
func (s *Session) AddToolResult(toolCallID string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.messages)
	if n == 0 || s.messages[n-1].Role != llmprovider.RoleAssistant {
		return &llmprovider.ProtocolError{Reason: "no assistant message for tool result", ToolCallID: toolCallID}
	}
	last := s.messages[n-1].Clone()
	inv, ok := last.ToolInvocation(toolCallID)
	if !ok {
		return &llmprovider.ProtocolError{Reason: "tool result for unknown tool call", ToolCallID: toolCallID}
	}
	if inv.State != ToolStateCall {
		return &llmprovider.ProtocolError{Reason: "tool result in state " + string(inv.State), ToolCallID: toolCallID}
	}
	inv.State = ToolStateResult
	inv.Result = result
	s.messages[n-1] = *last
	s.progressed = true
	return nil
}

// NeedsResubmit reports whether the conversation should be sent back to the
// model: the last turn or tool result made progress, the last message is an
// assistant message whose tool calls all have results, and the step budget
// allows another step.
func (s *Session) NeedsResubmit(maxSteps int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxSteps <= 1 || !s.progressed || len(s.messages) == 0 {
		return false
	}
	last := &s.messages[len(s.messages)-1]
	return last.HasCompletedToolCalls() && last.MaxStep()+1 < maxSteps
}

// RequestMessages converts the conversation into provider request messages.
func (s *Session) RequestMessages() ([]llmprovider.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []llmprovider.Message
	for i := range s.messages {
		msgs, err := s.messages[i].ToRequestMessages()
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", s.messages[i].ID, err)
		}
		out = append(out, msgs...)
	}
	return out, nil
}

// Process assembles a data stream into the conversation and saves the result.
// A trailing assistant message is continued rather than followed.
func (s *Session) Process(ctx context.Context, r io.Reader, opts ProcessOptions) (*FinishInfo, error) {
	opts.LastMessage = s.LastAssistantMessage()
	count, maxStep := s.progress()
	onUpdate := opts.OnUpdate
	opts.OnUpdate = func(snap Snapshot) {
		s.Apply(snap)
		if onUpdate != nil {
			onUpdate(snap)
		}
	}

	info, err := ProcessResponse(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	s.Apply(Snapshot{Message: info.Message, ReplaceLastMessage: opts.LastMessage != nil})

	newCount, newMaxStep := s.progress()
	s.mu.Lock()
	s.progressed = newCount > count || newMaxStep != maxStep
	s.mu.Unlock()

	if err := s.Save(ctx); err != nil {
		return info, err
	}
	return info, nil
}

func (s *Session) progress() (count, maxStep int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return 0, -1
	}
	return len(s.messages), s.messages[len(s.messages)-1].MaxStep()
}

// Save writes the conversation to the session's store.
func (s *Session) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, s.ID, s.Messages()); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}
