// ABOUTME: Optimistic echo reconciler suppressing the server echo of a locally shown send
// ABOUTME: Two markers: a timestamped pending echo (windowed) and a one-shot raw-text echo

package echo

import (
	"strings"
	"time"
)

// DefaultWindow is how long a timestamped pending echo stays matchable.
const DefaultWindow = 20 * time.Second

// Tracker holds one conversation's optimistic-send markers. The zero value
// has nothing pending. Tracker is not safe for concurrent use; its owner
// serializes access.
type Tracker struct {
	pendingText string
	pendingAt   time.Time
	hasPending  bool

	rawText string
	hasRaw  bool
}

// Record notes a provisional send of text at time at. It replaces any
// earlier pending echo and arms the one-shot raw marker.
func (t *Tracker) Record(text string, at time.Time) {
	t.pendingText = text
	t.pendingAt = at
	t.hasPending = true

	t.rawText = strings.TrimSpace(text)
	t.hasRaw = true
}

// Match reports whether a main-lane user message with text, arriving at
// now, is the echo of a provisional send. It matches when the trimmed text
// equals the pending echo within window, or equals the raw marker at any
// time. A match consumes the raw marker; the pending echo stays until it
// expires or a newer send replaces it.
func (t *Tracker) Match(text string, now time.Time, window time.Duration) bool {
	norm := strings.TrimSpace(text)

	timed := t.hasPending &&
		strings.TrimSpace(t.pendingText) == norm &&
		now.Sub(t.pendingAt) < window
	raw := t.hasRaw && t.rawText == norm

	if !timed && !raw {
		return false
	}
	t.rawText = ""
	t.hasRaw = false
	return true
}

// Pending returns the pending echo text and time, if any.
func (t *Tracker) Pending() (string, time.Time, bool) {
	return t.pendingText, t.pendingAt, t.hasPending
}

// RawArmed reports whether the one-shot raw marker is set.
func (t *Tracker) RawArmed() bool { return t.hasRaw }
