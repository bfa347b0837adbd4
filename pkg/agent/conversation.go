package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/sashabaranov/go-openai"
)

// Message represents a conversation message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State tracks whether a conversation has started
type State int

const (
	// StateFresh means the transcript is empty and the next submit
	// builds the dashboard context system message
	StateFresh State = iota
	// StateActive means the transcript exists and submits append to it
	StateActive
)

// Conversation holds one session's transcript. Once active, element 0
// is always the synthesized system message; it is sent with every
// completion request but hidden from rendering.
type Conversation struct {
	mu         sync.Mutex
	state      State
	transcript []Message
}

// Completer performs one chat completion over a full transcript
type Completer interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
}

// ContextBuilder assembles the dashboard data context for a session's
// first turn
type ContextBuilder interface {
	Build(ctx context.Context, dashboardUID string) (string, error)
}

// Manager owns the chat turn sequence for all sessions
type Manager struct {
	completer Completer
	contexts  ContextBuilder
	preamble  string
	sessions  map[string]*Conversation
	mu        sync.RWMutex
}

// NewManager creates a conversation manager. An empty preamble falls
// back to the default system prompt.
func NewManager(completer Completer, contexts ContextBuilder, preamble string) *Manager {
	if preamble == "" {
		preamble = DefaultPreamble
	}

	return &Manager{
		completer: completer,
		contexts:  contexts,
		preamble:  preamble,
		sessions:  make(map[string]*Conversation),
	}
}

// Submit runs one conversation turn. On a session's first turn the
// dashboard context is assembled and prepended as the system message;
// later turns just append the user message. The full transcript is
// dispatched to the completion service and the assistant's reply is
// appended on success. A failed completion leaves the user message in
// the transcript with no reply.
func (m *Manager) Submit(ctx context.Context, sessionID, dashboardUID, input string) (string, error) {
	conv := m.getOrCreate(sessionID)

	conv.mu.Lock()
	if conv.state == StateFresh {
		dashContext, err := m.contexts.Build(ctx, dashboardUID)
		if err != nil {
			conv.mu.Unlock()
			return "", fmt.Errorf("failed to assemble dashboard context: %w", err)
		}

		conv.transcript = []Message{
			{Role: openai.ChatMessageRoleSystem, Content: m.preamble + dashContext},
			{Role: openai.ChatMessageRoleUser, Content: input},
		}
		conv.state = StateActive
	} else {
		conv.transcript = append(conv.transcript, Message{
			Role:    openai.ChatMessageRoleUser,
			Content: input,
		})
	}
	messages := toCompletionMessages(conv.transcript)
	// Released while the completion call is in flight, so a second
	// submit can interleave; a slow reply then appends after newer
	// messages. Known limitation, matching the widget's behavior.
	conv.mu.Unlock()

	reply, err := m.completer.Complete(ctx, messages)
	if err != nil {
		log.DefaultLogger.Error("Chat completion failed", "session", sessionID, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	conv.mu.Lock()
	conv.transcript = append(conv.transcript, Message{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply,
	})
	conv.mu.Unlock()

	return reply, nil
}

// History returns the renderable transcript for a session: every
// message except the leading system message
func (m *Manager) History(sessionID string) []Message {
	conv := m.getOrCreate(sessionID)

	conv.mu.Lock()
	defer conv.mu.Unlock()

	if len(conv.transcript) == 0 {
		return []Message{}
	}

	history := make([]Message, len(conv.transcript)-1)
	copy(history, conv.transcript[1:])
	return history
}

// Reset clears a session's transcript, returning it to the fresh state
func (m *Manager) Reset(sessionID string) {
	conv := m.getOrCreate(sessionID)

	conv.mu.Lock()
	defer conv.mu.Unlock()

	conv.transcript = nil
	conv.state = StateFresh
}

// getOrCreate retrieves or creates the conversation for a session
func (m *Manager) getOrCreate(sessionID string) *Conversation {
	m.mu.RLock()
	conv, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if ok {
		return conv
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if conv, ok = m.sessions[sessionID]; ok {
		return conv
	}

	conv = &Conversation{state: StateFresh}
	m.sessions[sessionID] = conv
	return conv
}

// toCompletionMessages copies the transcript into the completion API's
// message type
func toCompletionMessages(transcript []Message) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(transcript))
	for _, msg := range transcript {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return messages
}
