// ABOUTME: Tests for the per-lane reveal scheduler
// ABOUTME: FIFO order, lane independence, the hard release bound and cancellation

package reveal

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-lanes/internal/clock"
	"github.com/2389/coven-lanes/internal/lane"
)

type recorder struct {
	mu       sync.Mutex
	log      []string
	progress map[string][]int
	outcomes map[string]Outcome
}

func newRecorder() *recorder {
	return &recorder{
		progress: make(map[string][]int),
		outcomes: make(map[string]Outcome),
	}
}

func (r *recorder) Begin(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "begin:"+msg.ID)
}

func (r *recorder) Progress(msg Message, visible int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[msg.ID] = append(r.progress[msg.ID], visible)
}

func (r *recorder) Finish(msg Message, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "finish:"+msg.ID)
	r.outcomes[msg.ID] = outcome
}

func (r *recorder) entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

func (r *recorder) outcome(id string) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outcomes[id]
	return o, ok
}

func (r *recorder) began(id string) bool {
	for _, e := range r.entries() {
		if e == "begin:"+id {
			return true
		}
	}
	return false
}

func msg(id, conv string, l lane.Lane, text string, animate bool) Message {
	return Message{ID: id, ConversationID: conv, Lane: l, Role: "idea_ai", Text: text, Animate: animate}
}

func finishedFn(r *recorder, id string) func() bool {
	return func() bool {
		_, ok := r.outcome(id)
		return ok
	}
}

func TestBound(t *testing.T) {
	tests := []struct {
		text string
		want time.Duration
	}{
		{"", time.Second},
		{"a", 2 * time.Second},
		{"12345678901234567890", 2 * time.Second},
		{"123456789012345678901", 3 * time.Second},
		{"こんにちは", 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.text), func(t *testing.T) {
			assert.Equal(t, tt.want, Bound(tt.text, DefaultCharsPerSecond))
		})
	}
}

func TestScheduler_InstantMessagesKeepOrder(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(clock.Real(), rec, Options{})
	defer s.Close()

	for _, id := range []string{"a", "b", "c"} {
		s.Enqueue(msg(id, "c1", lane.Main(), "hi "+id, false))
	}

	require.Eventually(t, finishedFn(rec, "c"), time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"begin:a", "finish:a",
		"begin:b", "finish:b",
		"begin:c", "finish:c",
	}, rec.entries())
}

func TestScheduler_AnimatedHeadBlocksLane(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	rec := newRecorder()
	s := NewScheduler(fake, rec, Options{})
	defer s.Close()

	s.Enqueue(msg("a", "c1", lane.Main(), "abc", true))
	s.Enqueue(msg("b", "c1", lane.Main(), "next", false))

	// Bound timer and frame ticker for "a"
	fake.WaitForTimers(2)
	assert.False(t, rec.began("b"))
	assert.Equal(t, 2, s.Pending("c1"))

	fake.Advance(150 * time.Millisecond)

	require.Eventually(t, finishedFn(rec, "b"), time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"begin:a", "finish:a", "begin:b", "finish:b"}, rec.entries())

	o, _ := rec.outcome("a")
	assert.Equal(t, Completed, o)
}

func TestScheduler_BoundReleasesStalledReveal(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	rec := newRecorder()
	// A frame interval far beyond the bound means the animation never ticks.
	s := NewScheduler(fake, rec, Options{FrameInterval: time.Hour})
	defer s.Close()

	s.Enqueue(msg("a", "c1", lane.Consult("idea_ai"), "abc", true))
	s.Enqueue(msg("b", "c1", lane.Consult("idea_ai"), "queued", false))

	fake.WaitForTimers(2)
	fake.Advance(1999 * time.Millisecond)
	_, done := rec.outcome("a")
	assert.False(t, done)

	fake.Advance(time.Millisecond)

	require.Eventually(t, finishedFn(rec, "b"), time.Second, 5*time.Millisecond)
	o, _ := rec.outcome("a")
	assert.Equal(t, Released, o)
	assert.Equal(t, []string{"begin:a", "finish:a", "begin:b", "finish:b"}, rec.entries())
}

func TestScheduler_LanesAreIndependent(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	rec := newRecorder()
	s := NewScheduler(fake, rec, Options{FrameInterval: time.Hour})
	defer s.Close()

	s.Enqueue(msg("slow", "c1", lane.Consult("writer_ai"), "a long consultation", true))
	s.Enqueue(msg("main", "c1", lane.Main(), "main lane", false))
	s.Enqueue(msg("other", "c1", lane.Consult("proof_ai"), "other consult", false))
	s.Enqueue(msg("elsewhere", "c2", lane.Consult("writer_ai"), "other conversation", false))

	require.Eventually(t, func() bool {
		return finishedFn(rec, "main")() && finishedFn(rec, "other")() && finishedFn(rec, "elsewhere")()
	}, time.Second, 5*time.Millisecond)

	_, done := rec.outcome("slow")
	assert.False(t, done)
}

func TestScheduler_CancelDropsQueuedAndInFlight(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	rec := newRecorder()
	s := NewScheduler(fake, rec, Options{FrameInterval: time.Hour})

	s.Enqueue(msg("a", "c1", lane.Main(), "stalled", true))
	s.Enqueue(msg("b", "c1", lane.Main(), "never shown", false))
	fake.WaitForTimers(2)

	s.Cancel("c1")
	s.Close()

	_, done := rec.outcome("a")
	assert.False(t, done)
	assert.False(t, rec.began("b"))
	assert.Equal(t, 0, s.Pending("c1"))
}

func TestScheduler_ProgressFollowsElapsedTime(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(clock.Real(), rec, Options{CharsPerSecond: 1000, FrameInterval: time.Millisecond})
	defer s.Close()

	s.Enqueue(msg("a", "c1", lane.Main(), "twenty characters!!!", true))

	require.Eventually(t, finishedFn(rec, "a"), 2*time.Second, 5*time.Millisecond)
	o, _ := rec.outcome("a")
	assert.Equal(t, Completed, o)

	rec.mu.Lock()
	steps := append([]int(nil), rec.progress["a"]...)
	rec.mu.Unlock()

	require.NotEmpty(t, steps)
	assert.Equal(t, 20, steps[len(steps)-1])
	for i := 1; i < len(steps); i++ {
		assert.Greater(t, steps[i], steps[i-1])
	}
}

func TestScheduler_EmptyAnimatedTextCompletes(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(clock.Real(), rec, Options{})
	defer s.Close()

	s.Enqueue(msg("a", "c1", lane.Main(), "", true))
	require.Eventually(t, finishedFn(rec, "a"), time.Second, 5*time.Millisecond)
}

// blockingSink holds the first Progress call until release is closed.
type blockingSink struct {
	*recorder
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSink) Progress(msg Message, visible int) {
	b.recorder.mu.Lock()
	b.recorder.log = append(b.recorder.log, "progress:"+msg.ID)
	b.recorder.mu.Unlock()

	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
}

func TestScheduler_FinishWaitsForInFlightProgress(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	sink := &blockingSink{
		recorder: newRecorder(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	s := NewScheduler(fake, sink, Options{FrameInterval: 50 * time.Millisecond})
	defer s.Close()

	s.Enqueue(msg("a", "c1", lane.Main(), "abcdef", true))
	fake.WaitForTimers(2)

	fake.Advance(50 * time.Millisecond)
	<-sink.entered

	// The bound fires while Progress is still running.
	fake.Advance(2 * time.Second)
	assert.Never(t, finishedFn(sink.recorder, "a"), 50*time.Millisecond, 5*time.Millisecond)

	close(sink.release)
	require.Eventually(t, finishedFn(sink.recorder, "a"), time.Second, 5*time.Millisecond)

	fake.Advance(time.Second)
	entries := sink.entries()
	require.GreaterOrEqual(t, len(entries), 3)
	assert.Equal(t, "begin:a", entries[0])
	assert.Equal(t, "progress:a", entries[1])
	assert.Equal(t, "finish:a", entries[len(entries)-1])
}
