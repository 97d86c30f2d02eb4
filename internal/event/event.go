// ABOUTME: Feed event type and JSON decoding with malformed-id detection
// ABOUTME: Accepts conv_id or conversation_id, null lanes and optional animate flag

package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrMalformed is returned for events with a missing or non-integer id.
var ErrMalformed = errors.New("malformed event")

// Event is one immutable message record from the feed.
type Event struct {
	ID             int64
	ConversationID string
	Lane           *string // nil when the producer did not tag a lane
	Role           string
	Text           string
	Animate        *bool // nil unless the producer set it explicitly
}

// HasLane reports whether the producer tagged a lane.
func (e Event) HasLane() bool { return e.Lane != nil }

// Instant reports whether the event is explicitly marked non-animated.
func (e Event) Instant() bool { return e.Animate != nil && !*e.Animate }

type wireEvent struct {
	ID             json.RawMessage `json:"id"`
	ConvID         string          `json:"conv_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Lane           *string         `json:"lane"`
	Role           string          `json:"role"`
	Text           json.RawMessage `json:"text"`
	Animate        *bool           `json:"animate,omitempty"`
}

// Decode parses one wire event.
func Decode(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	id, err := parseID(w.ID)
	if err != nil {
		return Event{}, err
	}

	convID := w.ConvID
	if convID == "" {
		convID = w.ConversationID
	}

	return Event{
		ID:             id,
		ConversationID: convID,
		Lane:           w.Lane,
		Role:           w.Role,
		Text:           parseText(w.Text),
		Animate:        w.Animate,
	}, nil
}

// DecodeBatch decodes every raw event, dropping malformed ones. It returns
// the well-formed events in input order and the number dropped.
func DecodeBatch(raws []json.RawMessage) ([]Event, int) {
	events := make([]Event, 0, len(raws))
	malformed := 0
	for _, raw := range raws {
		ev, err := Decode(raw)
		if err != nil {
			malformed++
			continue
		}
		events = append(events, ev)
	}
	return events, malformed
}

// MarshalJSON writes the event in the feed's wire format.
func (e Event) MarshalJSON() ([]byte, error) {
	text, err := json.Marshal(e.Text)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		ID:      json.RawMessage(strconv.FormatInt(e.ID, 10)),
		ConvID:  e.ConversationID,
		Lane:    e.Lane,
		Role:    e.Role,
		Text:    text,
		Animate: e.Animate,
	})
}

func parseID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if raw[0] == '"' {
		return 0, fmt.Errorf("%w: non-numeric id %s", ErrMalformed, raw)
	}

	if id, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return id, nil
	}

	// 7.0 and 1e3 are still integers
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: non-integer id %s", ErrMalformed, raw)
	}
	return int64(f), nil
}

func parseText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
