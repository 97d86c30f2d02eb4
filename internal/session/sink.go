// ABOUTME: Reveal sink turning scheduler callbacks into transcript rows and view updates
// ABOUTME: Drops output for conversations closed while their reveal was in flight

package session

import (
	"context"
	"strings"

	"github.com/2389/coven-lanes/internal/conversation"
	"github.com/2389/coven-lanes/internal/reveal"
	"github.com/2389/coven-lanes/internal/roles"
	"github.com/2389/coven-lanes/internal/store"
)

// continueQuestion marks a motivator message asking whether to go on.
const continueQuestion = "議論を継続しますか？"

type viewSink struct {
	s *Session
}

func (v *viewSink) Begin(msg reveal.Message) {
	s := v.s
	if s.convs.IsClosed(msg.ConversationID) {
		return
	}

	rec := &store.MessageRecord{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Lane:           msg.Lane.String(),
		Role:           msg.Role,
		Name:           msg.Name,
		Text:           msg.Text,
		Animated:       msg.Animate,
		EventID:        msg.EventID,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.store.SaveMessage(context.Background(), rec); err != nil {
		s.logger.Warn("failed to save message",
			"conversation_id", msg.ConversationID,
			"message_id", msg.ID,
			"error", err)
	}

	// A close that landed during the save may already have dropped the
	// transcript; drop it again so no row outlives the conversation.
	if s.convs.IsClosed(msg.ConversationID) {
		if err := s.store.DeleteTranscript(context.Background(), msg.ConversationID); err != nil {
			s.logger.Warn("failed to drop transcript of closed conversation",
				"conversation_id", msg.ConversationID,
				"error", err)
		}
		return
	}

	s.broadcaster.Publish(v.update(conversation.UpdateMessageStarted, msg))
}

func (v *viewSink) Progress(msg reveal.Message, visible int) {
	if v.s.convs.IsClosed(msg.ConversationID) {
		return
	}
	u := v.update(conversation.UpdateMessageProgress, msg)
	u.Visible = visible
	v.s.broadcaster.Publish(u)
}

func (v *viewSink) Finish(msg reveal.Message, outcome reveal.Outcome) {
	s := v.s
	if s.convs.IsClosed(msg.ConversationID) {
		return
	}

	u := v.update(conversation.UpdateMessageFinished, msg)
	u.Outcome = outcome
	if msg.Lane.IsMain() && msg.Role == roles.Motivator && strings.Contains(msg.Text, continueQuestion) {
		prompt := &conversation.ContinuePrompt{}
		if info, ok := s.convs.Get(msg.ConversationID); ok {
			for _, l := range info.Lanes {
				prompt.Roles = append(prompt.Roles, l.Role())
			}
		}
		u.Prompt = prompt
	}
	s.broadcaster.Publish(u)
}

func (v *viewSink) update(kind conversation.UpdateKind, msg reveal.Message) *conversation.Update {
	m := msg
	u := &conversation.Update{
		Kind:           kind,
		ConversationID: msg.ConversationID,
		Lane:           msg.Lane,
		Message:        &m,
		At:             v.s.clock.Now(),
	}
	if info, ok := v.s.convs.Get(msg.ConversationID); ok {
		u.Seq = info.Seq
	}
	return u
}
