package core

import (
	"sync"
	"time"
)

// Conversation defaults.
const (
	DefaultMaxHistory      = 10
	DefaultConversationTTL = 24 * time.Hour
)

type conversation struct {
	messages   []Message
	lastActive time.Time
}

// ContextManager tracks per-user conversation history with a bounded
// window and idle expiry. All methods are safe for concurrent use.
type ContextManager struct {
	maxHistory int
	ttl        time.Duration

	mu            sync.RWMutex
	conversations map[string]*conversation
}

// NewContextManager creates a context manager. Non-positive arguments
// fall back to the defaults.
func NewContextManager(maxHistory int, ttl time.Duration) *ContextManager {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &ContextManager{
		maxHistory:    maxHistory,
		ttl:           ttl,
		conversations: make(map[string]*conversation),
	}
}

// AddMessage appends one turn to the user's conversation, evicting the
// oldest turns beyond the history window.
func (m *ContextManager) AddMessage(userID, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.conversations[userID]
	if conv == nil {
		conv = &conversation{}
		m.conversations[userID] = conv
	}
	conv.messages = append(conv.messages, Message{
		Role:    role,
		Content: content,
		At:      time.Now(),
	})
	if n := len(conv.messages); n > m.maxHistory {
		conv.messages = append(conv.messages[:0:0], conv.messages[n-m.maxHistory:]...)
	}
	conv.lastActive = time.Now()
}

// History returns a copy of the user's conversation, oldest first.
// Expired conversations return nil.
func (m *ContextManager) History(userID string) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv := m.conversations[userID]
	if conv == nil || time.Since(conv.lastActive) > m.ttl {
		return nil
	}
	out := make([]Message, len(conv.messages))
	copy(out, conv.messages)
	return out
}

// RecentlyActive reports whether the user spoke with the assistant
// within the given window. Used to keep multi-turn exchanges flowing
// without re-triggering.
func (m *ContextManager) RecentlyActive(userID string, window time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv := m.conversations[userID]
	return conv != nil && time.Since(conv.lastActive) <= window
}

// PurgeExpired drops conversations idle past the TTL and returns how
// many were removed.
func (m *ContextManager) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, conv := range m.conversations {
		if time.Since(conv.lastActive) > m.ttl {
			delete(m.conversations, id)
			removed++
		}
	}
	return removed
}

// ActiveConversations returns the number of tracked conversations.
func (m *ContextManager) ActiveConversations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}
