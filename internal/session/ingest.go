// ABOUTME: Event ingest: de-dup, closed-conversation bookkeeping, lane routing and echo reconciliation
// ABOUTME: Every admitted event lands in the ledger; routed ones are queued for reveal

package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/2389/coven-lanes/internal/conversation"
	"github.com/2389/coven-lanes/internal/event"
	"github.com/2389/coven-lanes/internal/lane"
	"github.com/2389/coven-lanes/internal/reveal"
	"github.com/2389/coven-lanes/internal/roles"
	"github.com/2389/coven-lanes/internal/store"
)

// ingest processes a batch in order. fallback names the conversation for
// events that do not carry one, e.g. the target of a send.
func (s *Session) ingest(ctx context.Context, events []event.Event, fallback string, source store.Source) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	for _, ev := range events {
		s.ingestOne(ctx, ev, fallback, source)
	}
}

func (s *Session) ingestOne(ctx context.Context, ev event.Event, fallback string, source store.Source) {
	if !s.cursor.Admit(ev.ID) {
		s.logger.Debug("duplicate event skipped", "event_id", ev.ID, "source", source)
		return
	}

	convID := ev.ConversationID
	if convID == "" {
		convID = fallback
	}

	rec := &store.EventRecord{
		EventID:        ev.ID,
		ConversationID: convID,
		Role:           ev.Role,
		Text:           ev.Text,
		Source:         source,
		ReceivedAt:     s.clock.Now(),
	}
	if ev.HasLane() {
		rec.Lane = *ev.Lane
	}

	if s.convs.IsClosed(convID) {
		rec.Disposition = store.DispositionClosed
		s.logger.Debug("event for closed conversation",
			"event_id", ev.ID,
			"conversation_id", convID)
		s.record(ctx, rec)
		return
	}

	route, err := s.router.Route(ev, fallback)
	if err == nil && route.ConversationID == "" {
		err = errors.New("event names no conversation")
	}
	if err != nil {
		rec.Disposition = store.DispositionUnroutable
		s.logger.Warn("event not routable",
			"event_id", ev.ID,
			"conversation_id", convID,
			"lane", rec.Lane,
			"error", err)
		s.record(ctx, rec)
		return
	}

	info, created, err := s.convs.Ensure(route.ConversationID, false)
	if err != nil {
		// Only a closed id can fail here, and that was checked under ingestMu.
		rec.Disposition = store.DispositionClosed
		s.record(ctx, rec)
		return
	}
	if created {
		s.publishConversation(conversation.UpdateCreated, info.ID)
		if s.convs.Focused() == info.ID {
			s.publishConversation(conversation.UpdateActivated, info.ID)
		}
	}
	if s.convs.AddLane(info.ID, route.Lane) {
		s.broadcaster.Publish(&conversation.Update{
			Kind:           conversation.UpdateLaneOpened,
			ConversationID: info.ID,
			Seq:            info.Seq,
			Lane:           route.Lane,
			At:             s.clock.Now(),
		})
	}

	rec.Disposition = store.DispositionRouted
	if route.Lane.IsMain() && ev.Role == roles.User {
		// The title follows the user's words whether or not the bubble is
		// suppressed as an echo.
		if _, changed := s.convs.DeriveTitle(info.ID, ev.Text); changed {
			s.publishConversation(conversation.UpdateRetitled, info.ID)
		}
		if s.convs.MatchEcho(info.ID, ev.Text, s.echoWindow) {
			rec.Disposition = store.DispositionEcho
		}
	}
	s.record(ctx, rec)

	if rec.Disposition != store.DispositionRouted {
		s.logger.Debug("echo of optimistic send suppressed",
			"event_id", ev.ID,
			"conversation_id", info.ID)
		return
	}

	s.scheduler.Enqueue(reveal.Message{
		ID:             uuid.New().String(),
		ConversationID: info.ID,
		Lane:           route.Lane,
		Role:           ev.Role,
		Name:           s.catalog.DisplayName(ev.Role, route.Lane),
		Text:           ev.Text,
		Animate:        ev.Role != roles.User && !ev.Instant(),
		EventID:        ev.ID,
	})
}

// postLocal queues a message produced by the client itself (a provisional
// user bubble or a system notice) on a conversation's main lane.
func (s *Session) postLocal(conversationID, role, text string) {
	s.scheduler.Enqueue(reveal.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Lane:           lane.Main(),
		Role:           role,
		Name:           s.catalog.DisplayName(role, lane.Main()),
		Text:           text,
	})
}

func (s *Session) record(ctx context.Context, rec *store.EventRecord) {
	if err := s.store.SaveEvent(ctx, rec); err != nil {
		s.logger.Warn("failed to record event",
			"event_id", rec.EventID,
			"conversation_id", rec.ConversationID,
			"error", err)
	}
}
