// ABOUTME: Poll loop driver: fetches the feed after the cursor on a fixed interval
// ABOUTME: Failures only change the status string; the next tick retries from the same cursor

package session

import (
	"context"
	"fmt"

	"github.com/2389/coven-lanes/internal/store"
)

// Poll fetches every event after the cursor once and ingests it.
func (s *Session) Poll(ctx context.Context) error {
	since := s.cursor.Last()
	events, err := s.backend.PollFeed(ctx, since)
	if err != nil {
		s.logger.Debug("poll failed", "since", since, "error", err)
		s.setStatus(fmt.Sprintf("offline (%v)", err))
		return fmt.Errorf("poll feed: %w", err)
	}

	s.ingest(ctx, events, "", store.SourcePoll)
	s.setStatus(fmt.Sprintf("live · last=%d", s.cursor.Last()))
	return nil
}

// Run polls immediately and then every poll interval until ctx is done.
// There is no backoff: a failed poll is simply retried on the next tick.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("poll loop starting", "interval", s.pollInterval)

	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	_ = s.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("poll loop stopped", "cursor", s.cursor.Last())
			return ctx.Err()
		case <-ticker.C:
			_ = s.Poll(ctx)
		}
	}
}
