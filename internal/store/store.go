// ABOUTME: Store interface and record types for the session ledger
// ABOUTME: Admitted events with their disposition, display messages in reveal order

package store

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateEvent is returned when an event id is saved twice.
var ErrDuplicateEvent = errors.New("event already recorded")

// Disposition records what the engine did with an admitted event.
type Disposition string

const (
	DispositionRouted     Disposition = "routed"     // queued for display
	DispositionEcho       Disposition = "echo"       // matched an optimistic send
	DispositionClosed     Disposition = "closed"     // conversation already closed
	DispositionUnroutable Disposition = "unroutable" // lane tag not understood
)

// Source names the request that delivered an event.
type Source string

const (
	SourcePoll   Source = "poll"
	SourceSend   Source = "send"
	SourceCreate Source = "create"
	SourceAgent  Source = "agent"
)

// EventRecord is one admitted feed event.
type EventRecord struct {
	EventID        int64
	ConversationID string
	Lane           string // raw tag, empty when the producer sent none
	Role           string
	Text           string
	Disposition    Disposition
	Source         Source
	ReceivedAt     time.Time
}

// MessageRecord is one display message. Position is assigned by the store
// on save and orders messages by when their reveal began.
type MessageRecord struct {
	ID             string
	ConversationID string
	Lane           string // lane.Lane.String()
	Role           string
	Name           string
	Text           string
	Animated       bool
	EventID        int64 // 0 for local messages
	Position       int64
	CreatedAt      time.Time
}

// Store is the session ledger.
type Store interface {
	// SaveEvent records an admitted event. Returns ErrDuplicateEvent when
	// the id is already present.
	SaveEvent(ctx context.Context, ev *EventRecord) error

	// ListEvents returns the most recent limit events for a conversation in
	// ascending id order. limit <= 0 returns all of them.
	ListEvents(ctx context.Context, conversationID string, limit int) ([]*EventRecord, error)

	// SaveMessage appends a display message and sets its Position.
	SaveMessage(ctx context.Context, msg *MessageRecord) error

	// ListMessages returns a conversation's messages in Position order.
	// An empty lane returns every lane.
	ListMessages(ctx context.Context, conversationID, lane string) ([]*MessageRecord, error)

	// DeleteTranscript drops every display message of a conversation. The
	// event ledger is kept.
	DeleteTranscript(ctx context.Context, conversationID string) error

	Close() error
}
