// ABOUTME: Per-lane serial reveal scheduler with wall-clock paced typing and a hard release bound
// ABOUTME: Lanes drain independently; closing a conversation clears all of its queues

package reveal

import (
	"log/slog"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/2389/coven-lanes/internal/clock"
	"github.com/2389/coven-lanes/internal/lane"
)

// Defaults for Options.
const (
	DefaultCharsPerSecond = 20.0
	DefaultFrameInterval  = 50 * time.Millisecond
)

// Message is one display-ready message travelling through a lane queue.
type Message struct {
	ID             string
	ConversationID string
	Lane           lane.Lane
	Role           string
	Name           string
	Text           string
	Animate        bool
	EventID        int64 // 0 for locally produced messages
}

// Outcome says how a reveal ended.
type Outcome int

const (
	// Completed means every character was revealed (or the message was instant).
	Completed Outcome = iota
	// Released means the hard bound fired before the reveal finished.
	Released
)

func (o Outcome) String() string {
	if o == Released {
		return "released"
	}
	return "completed"
}

// Sink receives reveal progress. Begin and Finish are called once per
// message from the lane's drain goroutine, in lane order. Progress is
// called from a reveal goroutine; Finish waits for an in-flight Progress
// call, and Progress is never called after Finish starts.
type Sink interface {
	Begin(msg Message)
	Progress(msg Message, visible int)
	Finish(msg Message, outcome Outcome)
}

// Options configures a Scheduler.
type Options struct {
	CharsPerSecond float64
	FrameInterval  time.Duration
	Logger         *slog.Logger
}

type queueKey struct {
	conversationID string
	lane           lane.Lane
}

// Scheduler serializes reveals per (conversation, lane).
type Scheduler struct {
	clock  clock.Clock
	sink   Sink
	rate   float64
	frame  time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	queues map[queueKey]*laneQueue
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler delivering to sink.
func NewScheduler(clk clock.Clock, sink Sink, opts Options) *Scheduler {
	if opts.CharsPerSecond <= 0 {
		opts.CharsPerSecond = DefaultCharsPerSecond
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		clock:  clk,
		sink:   sink,
		rate:   opts.CharsPerSecond,
		frame:  opts.FrameInterval,
		logger: opts.Logger.With("component", "reveal"),
		queues: make(map[queueKey]*laneQueue),
	}
}

// Bound is the longest a reveal of text may hold its lane:
// ceil(runes/rate) seconds plus one second.
func Bound(text string, rate float64) time.Duration {
	secs := math.Ceil(float64(utf8.RuneCountInString(text)) / rate)
	return time.Duration(secs)*time.Second + time.Second
}

// Enqueue appends msg to its lane's queue, starting the lane's drain if
// it was idle.
func (s *Scheduler) Enqueue(msg Message) {
	key := queueKey{conversationID: msg.ConversationID, lane: msg.Lane}

	s.mu.Lock()
	q, ok := s.queues[key]
	if !ok {
		q = newLaneQueue()
		s.queues[key] = q
	}
	m := msg
	start := q.push(&m)
	if start {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if start {
		go s.drain(key, q)
	}
}

// Cancel clears every queue belonging to conversationID. Queued messages
// are dropped and in-flight reveals stop without a Finish call.
func (s *Scheduler) Cancel(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, q := range s.queues {
		if key.conversationID != conversationID {
			continue
		}
		q.clear()
		delete(s.queues, key)
	}
}

// Pending counts messages queued or revealing for conversationID.
func (s *Scheduler) Pending(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, q := range s.queues {
		if key.conversationID == conversationID {
			n += q.size()
		}
	}
	return n
}

// Close cancels all queues and waits for drain goroutines to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	for key, q := range s.queues {
		q.clear()
		delete(s.queues, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) drain(key queueKey, q *laneQueue) {
	defer s.wg.Done()

	for {
		msg := q.next()
		if msg == nil {
			break
		}
		s.reveal(q, *msg)
	}

	// Forget idle queues so long sessions don't accumulate lanes.
	s.mu.Lock()
	if cur, ok := s.queues[key]; ok && cur == q && q.idle() {
		delete(s.queues, key)
	}
	s.mu.Unlock()
}

func (s *Scheduler) reveal(q *laneQueue, msg Message) {
	s.sink.Begin(msg)

	if !msg.Animate {
		s.sink.Finish(msg, Completed)
		return
	}

	gate := &progressGate{}
	done := make(chan struct{})
	stop := make(chan struct{})
	bound := s.clock.After(Bound(msg.Text, s.rate))

	go s.animate(msg, gate, done, stop)

	outcome := Completed
	select {
	case <-done:
	case <-bound:
		outcome = Released
		s.logger.Debug("reveal bound released lane",
			"conversation_id", msg.ConversationID,
			"lane", msg.Lane.String(),
			"message_id", msg.ID,
		)
	case <-q.ctx.Done():
		gate.shut()
		close(stop)
		return
	}

	gate.shut()
	close(stop)
	s.sink.Finish(msg, outcome)
}

// animate reports visible rune counts derived from elapsed clock time, so
// the reveal length depends only on text length and rate.
func (s *Scheduler) animate(msg Message, gate *progressGate, done, stop chan struct{}) {
	total := utf8.RuneCountInString(msg.Text)
	if total == 0 {
		close(done)
		return
	}

	perChar := time.Duration(float64(time.Second) / s.rate)
	start := s.clock.Now()
	ticker := s.clock.NewTicker(s.frame)
	defer ticker.Stop()

	shown := 0
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			visible := min(int(now.Sub(start)/perChar), total)
			if visible > shown {
				shown = visible
				if !gate.report(func() { s.sink.Progress(msg, visible) }) {
					return
				}
			}
			if visible >= total {
				close(done)
				return
			}
		}
	}
}

// progressGate orders Progress calls before the reveal's end.
type progressGate struct {
	mu     sync.Mutex
	closed bool
}

// report runs fn unless the gate is shut. It returns false when shut.
func (g *progressGate) report(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	fn()
	return true
}

// shut waits for a running report and blocks later ones.
func (g *progressGate) shut() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
