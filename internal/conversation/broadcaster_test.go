// ABOUTME: Tests for the view update broadcaster
// ABOUTME: Covers per-conversation and wildcard delivery, slow consumers and cleanup

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeUpdate(kind UpdateKind, convID string) *Update {
	return &Update{Kind: kind, ConversationID: convID, At: time.Now()}
}

func receive(t *testing.T, ch <-chan *Update) *Update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
		return nil
	}
}

func assertNothing(t *testing.T, ch <-chan *Update) {
	t.Helper()
	select {
	case u := <-ch:
		t.Fatalf("unexpected update %v", u.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcaster_SubscriberReceivesUpdate(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "conv-1")
	b.Publish(makeUpdate(UpdateCreated, "conv-1"))

	u := receive(t, ch)
	assert.Equal(t, UpdateCreated, u.Kind)
	assert.Equal(t, "conv-1", u.ConversationID)
}

func TestBroadcaster_ConversationsAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "conv-1")
	ch2, _ := b.Subscribe(t.Context(), "conv-2")

	b.Publish(makeUpdate(UpdateRetitled, "conv-1"))

	receive(t, ch1)
	assertNothing(t, ch2)
}

func TestBroadcaster_WildcardReceivesEverything(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	all, _ := b.Subscribe(t.Context(), AllConversations)

	b.Publish(makeUpdate(UpdateCreated, "conv-1"))
	b.Publish(makeUpdate(UpdateCreated, "conv-2"))
	b.Publish(&Update{Kind: UpdateStatus, Status: "live · last=3"})

	assert.Equal(t, "conv-1", receive(t, all).ConversationID)
	assert.Equal(t, "conv-2", receive(t, all).ConversationID)
	assert.Equal(t, "live · last=3", receive(t, all).Status)
	assertNothing(t, all)
}

func TestBroadcaster_StatusDoesNotReachConversationSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "conv-1")
	b.Publish(&Update{Kind: UpdateStatus, Status: "offline (boom)"})

	assertNothing(t, ch)
}

func TestBroadcaster_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	_, _ = b.Subscribe(t.Context(), "conv-1")
	fast, _ := b.Subscribe(t.Context(), "conv-1")

	done := make(chan struct{})
	go func() {
		for range subscriberBufferSize * 2 {
			b.Publish(makeUpdate(UpdateMessageProgress, "conv-1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
	receive(t, fast)
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, subID := b.Subscribe(ctx, "conv-1")

	b.mu.RLock()
	_, exists := b.subscribers["conv-1"][subID]
	b.mu.RUnlock()
	assert.True(t, exists)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}

	b.mu.RLock()
	_, convExists := b.subscribers["conv-1"]
	b.mu.RUnlock()
	assert.False(t, convExists)
}

func TestBroadcaster_ManualUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context(), "conv-1")
	b.Unsubscribe("conv-1", subID)

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing afterwards must not panic
	b.Publish(makeUpdate(UpdateClosed, "conv-1"))
}

func TestBroadcaster_CloseClosesAllSubscriptions(t *testing.T) {
	b := NewBroadcaster(nil)

	ch1, _ := b.Subscribe(t.Context(), "conv-1")
	ch2, _ := b.Subscribe(t.Context(), AllConversations)

	b.Close()

	for i, ch := range []<-chan *Update{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel %d should be closed after Close()", i)
		case <-time.After(time.Second):
			t.Fatalf("channel %d not closed after Close()", i)
		}
	}
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	ctx := t.Context()

	for range 10 {
		wg.Go(func() {
			ch, _ := b.Subscribe(ctx, "conv-concurrent")
			for range 5 {
				select {
				case <-ch:
				case <-time.After(500 * time.Millisecond):
					return
				}
			}
		})
	}
	for range 10 {
		wg.Go(func() {
			for range 10 {
				b.Publish(makeUpdate(UpdateMessageStarted, "conv-concurrent"))
			}
		})
	}

	wg.Wait()
}

func TestBroadcaster_SubscribeReturnsUniqueIDs(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	_, id1 := b.Subscribe(t.Context(), "conv-1")
	_, id2 := b.Subscribe(t.Context(), "conv-1")
	_, id3 := b.Subscribe(t.Context(), AllConversations)

	require.NotEqual(t, id1, id2)
	require.NotEqual(t, id1, id3)
	require.NotEqual(t, id2, id3)
}

func TestBroadcaster_PublishDuringUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	for range 50 {
		ctx, cancel := context.WithCancel(t.Context())
		ch, subID := b.Subscribe(ctx, "conv-1")
		_, wildID := b.Subscribe(ctx, AllConversations)

		var wg sync.WaitGroup
		wg.Go(func() {
			for range 20 {
				b.Publish(makeUpdate(UpdateMessageProgress, "conv-1"))
			}
		})
		wg.Go(func() {
			cancel()
			b.Unsubscribe("conv-1", subID)
			b.Unsubscribe(AllConversations, wildID)
		})
		wg.Wait()

		// Drains whatever was delivered, then sees the channel closed.
		for range ch {
		}
	}
}
