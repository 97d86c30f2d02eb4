// ABOUTME: User-driven session operations: create, send, close, invite agents, continue discussion
// ABOUTME: Sends are optimistic: the user's bubble is queued before the backend answers

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/coven-lanes/internal/conversation"
	"github.com/2389/coven-lanes/internal/roles"
	"github.com/2389/coven-lanes/internal/store"
)

// Create starts a new conversation on the backend, focuses it and routes
// its priming events. On failure a system message is posted to the
// focused conversation, if there is one.
func (s *Session) Create(ctx context.Context) (string, error) {
	id, events, err := s.backend.CreateConversation(ctx)
	if err != nil {
		s.logger.Error("create conversation failed", "error", err)
		if focused := s.convs.Focused(); focused != "" {
			s.postLocal(focused, roles.System, "会話の作成に失敗しました: "+err.Error())
		}
		return "", fmt.Errorf("create conversation: %w", err)
	}

	s.ingestMu.Lock()
	info, created, err := s.convs.Ensure(id, true)
	s.ingestMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("create conversation %s: %w", id, err)
	}
	if created {
		s.publishConversation(conversation.UpdateCreated, info.ID)
	}
	s.publishConversation(conversation.UpdateActivated, info.ID)

	s.logger.Info("conversation started",
		"conversation_id", id,
		"seq", info.Seq,
		"events", len(events))

	s.ingest(ctx, events, id, store.SourceCreate)
	return id, nil
}

// Send submits text to a conversation. The text is shown immediately as
// the user's message; the backend's echo of it is suppressed when it
// arrives. Events in the response are routed by their own conversation
// ids. A transport failure is shown as a system message in the
// conversation and also returned.
func (s *Session) Send(ctx context.Context, conversationID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	switch s.convs.StatusOf(conversationID) {
	case conversation.StatusClosed:
		return conversation.ErrClosed
	case conversation.StatusActive:
	default:
		return fmt.Errorf("%w: %s", conversation.ErrNotFound, conversationID)
	}

	if !s.convs.BeginSend(conversationID) {
		return ErrSendInFlight
	}
	defer s.convs.EndSend(conversationID)

	s.convs.RecordEcho(conversationID, text)
	s.postLocal(conversationID, roles.User, text)

	events, err := s.backend.SendMessage(ctx, conversationID, text)
	if err != nil {
		s.logger.Warn("send failed",
			"conversation_id", conversationID,
			"error", err)
		if !s.convs.IsClosed(conversationID) {
			s.postLocal(conversationID, roles.System, "送信エラー: "+err.Error())
		}
		return fmt.Errorf("send message: %w", err)
	}

	s.ingest(ctx, events, conversationID, store.SourceSend)
	return nil
}

// CloseConversation permanently closes a conversation. Its queued reveals
// are dropped and its transcript discarded; later events for it only
// advance the cursor. If it had focus, focus moves to the remaining
// conversation with the lowest tab number, or a new conversation is
// created when none is left.
func (s *Session) CloseConversation(ctx context.Context, conversationID string) error {
	s.ingestMu.Lock()
	info, _ := s.convs.Get(conversationID)
	res, err := s.convs.Close(conversationID)
	if err == nil {
		s.scheduler.Cancel(conversationID)
	}
	s.ingestMu.Unlock()
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}

	if err := s.store.DeleteTranscript(ctx, conversationID); err != nil {
		s.logger.Warn("failed to discard transcript",
			"conversation_id", conversationID,
			"error", err)
	}

	s.broadcaster.Publish(&conversation.Update{
		Kind:           conversation.UpdateClosed,
		ConversationID: conversationID,
		Seq:            info.Seq,
		Title:          info.Title,
		At:             s.clock.Now(),
	})

	switch {
	case res.NeedNew:
		if _, err := s.Create(ctx); err != nil {
			return fmt.Errorf("replace closed conversation: %w", err)
		}
	case res.WasFocused:
		s.publishConversation(conversation.UpdateActivated, res.NextFocus)
	}
	return nil
}

// AddAgent invites a specialist into a conversation.
func (s *Session) AddAgent(ctx context.Context, conversationID, roleID string) error {
	if s.convs.IsClosed(conversationID) {
		return conversation.ErrClosed
	}
	events, err := s.backend.AddAgent(ctx, conversationID, roleID)
	if err != nil {
		return fmt.Errorf("add agent %s: %w", roleID, err)
	}
	s.ingest(ctx, events, conversationID, store.SourceAgent)
	return nil
}

// AddAgents invites several specialists at once.
func (s *Session) AddAgents(ctx context.Context, conversationID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return errors.New("no roles to add")
	}
	if s.convs.IsClosed(conversationID) {
		return conversation.ErrClosed
	}
	events, err := s.backend.AddAgents(ctx, conversationID, roleIDs)
	if err != nil {
		return fmt.Errorf("add agents: %w", err)
	}
	s.ingest(ctx, events, conversationID, store.SourceAgent)
	return nil
}

// Continue answers the motivator's continue prompt. An empty selection
// continues with everyone; otherwise only the named roles carry on.
func (s *Session) Continue(ctx context.Context, conversationID string, roleIDs []string) error {
	return s.Send(ctx, conversationID, ContinueText(s.catalog, roleIDs))
}

// ContinueText is the reply sent for a continue selection.
func ContinueText(catalog *roles.Catalog, roleIDs []string) string {
	switch len(roleIDs) {
	case 0:
		return "はい"
	case 1:
		return catalog.Label(roleIDs[0]) + "だけ継続"
	}
	names := make([]string, len(roleIDs))
	for i, id := range roleIDs {
		names[i] = catalog.Label(id)
	}
	return strings.Join(names, "と") + "で継続"
}
