// ABOUTME: FIFO reveal queue for one lane with a single processing slot
// ABOUTME: Clearing a queue cancels its context so an in-flight reveal stops early

package reveal

import (
	"container/list"
	"context"
	"sync"
)

// laneQueue holds the pending reveals for one (conversation, lane) pair.
// At most one message is processing at a time.
type laneQueue struct {
	mu         sync.Mutex
	messages   *list.List
	processing *Message
	draining   bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newLaneQueue() *laneQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &laneQueue{
		messages: list.New(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// push appends msg and reports whether the caller must start a drain
// goroutine. Returns false once the queue has been cleared.
func (q *laneQueue) push(msg *Message) (startDrain bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return false
	}
	q.messages.PushBack(msg)
	if q.draining {
		return false
	}
	q.draining = true
	return true
}

// next moves the front message into the processing slot. It returns nil
// and ends the drain when the queue is empty or cleared.
func (q *laneQueue) next() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.processing = nil
	front := q.messages.Front()
	if front == nil || q.ctx.Err() != nil {
		q.draining = false
		return nil
	}
	msg, ok := front.Value.(*Message)
	q.messages.Remove(front)
	if !ok {
		q.draining = false
		return nil
	}
	q.processing = msg
	return msg
}

// clear drops every queued message and cancels the in-flight one.
func (q *laneQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.messages.Init()
	q.cancel()
}

// size counts queued messages plus the one processing.
func (q *laneQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.messages.Len()
	if q.processing != nil {
		n++
	}
	return n
}

// idle reports whether nothing is queued or processing.
func (q *laneQueue) idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.messages.Len() == 0 && q.processing == nil && !q.draining
}
