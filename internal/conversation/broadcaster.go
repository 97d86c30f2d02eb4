// ABOUTME: In-memory fan-out of view updates to subscribers
// ABOUTME: Subscribers follow one conversation id or every conversation via the empty key

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber. Reveal
	// progress is chatty, so this is larger than a plain message stream needs.
	subscriberBufferSize = 256

	// AllConversations subscribes to updates for every conversation,
	// including status updates that belong to none.
	AllConversations = ""
)

// Broadcaster provides in-memory pub/sub for view updates.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Update // conversationID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *Update),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for updates on conversationID, or on
// everything when conversationID is AllConversations. The subscription is
// removed and its channel closed when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan *Update, string) {
	subID := uuid.New().String()
	ch := make(chan *Update, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan *Update)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish delivers u to subscribers of its conversation and to wildcard
// subscribers. Non-blocking: updates are dropped for full channels. Sends
// happen under the read lock so Unsubscribe cannot close a channel mid-send.
func (b *Broadcaster) Publish(u *Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.deliver(b.subscribers[u.ConversationID], u)
	if u.ConversationID != AllConversations {
		b.deliver(b.subscribers[AllConversations], u)
	}
}

func (b *Broadcaster) deliver(subs map[string]chan *Update, u *Update) {
	for _, ch := range subs {
		select {
		case ch <- u:
		default:
			b.logger.Debug("dropped update for slow subscriber",
				"conversation_id", u.ConversationID,
				"kind", string(u.Kind))
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}

	b.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}

	b.logger.Debug("broadcaster closed")
}
