// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	events   map[int64]*EventRecord // keyed by event id
	messages []*MessageRecord       // in position order
	nextPos  int64
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		events: make(map[int64]*EventRecord),
	}
}

// SaveEvent stores a copy of ev.
func (m *MockStore) SaveEvent(ctx context.Context, ev *EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.events[ev.EventID]; exists {
		return ErrDuplicateEvent
	}
	e := *ev
	m.events[e.EventID] = &e
	return nil
}

// ListEvents returns the most recent limit events of a conversation, oldest first.
func (m *MockStore) ListEvents(ctx context.Context, conversationID string, limit int) ([]*EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*EventRecord
	for _, ev := range m.events {
		if ev.ConversationID == conversationID {
			e := *ev
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// SaveMessage appends a copy of msg and sets msg.Position.
func (m *MockStore) SaveMessage(ctx context.Context, msg *MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextPos++
	msg.Position = m.nextPos
	c := *msg
	m.messages = append(m.messages, &c)
	return nil
}

// ListMessages returns a conversation's messages in position order.
func (m *MockStore) ListMessages(ctx context.Context, conversationID, lane string) ([]*MessageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*MessageRecord
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if lane != "" && msg.Lane != lane {
			continue
		}
		c := *msg
		out = append(out, &c)
	}
	return out, nil
}

// DeleteTranscript drops a conversation's messages.
func (m *MockStore) DeleteTranscript(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }
