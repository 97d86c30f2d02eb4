// ABOUTME: Tests for feed event decoding and malformed event handling
// ABOUTME: Covers id validation, conversation id aliases, lanes and batch dropping

package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_FullEvent(t *testing.T) {
	ev, err := Decode([]byte(`{"id": 7, "conv_id": "c-1", "lane": "consult:idea_ai", "role": "idea_ai", "text": "hello"}`))
	require.NoError(t, err)

	assert.Equal(t, int64(7), ev.ID)
	assert.Equal(t, "c-1", ev.ConversationID)
	require.True(t, ev.HasLane())
	assert.Equal(t, "consult:idea_ai", *ev.Lane)
	assert.Equal(t, "idea_ai", ev.Role)
	assert.Equal(t, "hello", ev.Text)
	assert.False(t, ev.Instant())
}

func TestDecode_ConversationIDAlias(t *testing.T) {
	ev, err := Decode([]byte(`{"id": 1, "conversation_id": "c-2", "role": "user", "text": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, "c-2", ev.ConversationID)
}

func TestDecode_NullAndAbsentLane(t *testing.T) {
	for _, raw := range []string{
		`{"id": 1, "conv_id": "c", "lane": null, "role": "pm_ai", "text": "x"}`,
		`{"id": 1, "conv_id": "c", "role": "pm_ai", "text": "x"}`,
	} {
		ev, err := Decode([]byte(raw))
		require.NoError(t, err)
		assert.False(t, ev.HasLane(), raw)
	}
}

func TestDecode_AnimateFalseIsInstant(t *testing.T) {
	ev, err := Decode([]byte(`{"id": 3, "conv_id": "c", "role": "writer_ai", "text": "x", "animate": false}`))
	require.NoError(t, err)
	assert.True(t, ev.Instant())
}

func TestDecode_IntegralFloatID(t *testing.T) {
	ev, err := Decode([]byte(`{"id": 12.0, "conv_id": "c", "role": "user", "text": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(12), ev.ID)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing id", `{"conv_id": "c", "role": "user", "text": "x"}`},
		{"null id", `{"id": null, "conv_id": "c"}`},
		{"string id", `{"id": "5", "conv_id": "c"}`},
		{"fractional id", `{"id": 5.5, "conv_id": "c"}`},
		{"not an object", `[1, 2]`},
		{"bool id", `{"id": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_NonStringTextKeepsLiteral(t *testing.T) {
	ev, err := Decode([]byte(`{"id": 1, "conv_id": "c", "role": "pm_ai", "text": 42}`))
	require.NoError(t, err)
	assert.Equal(t, "42", ev.Text)
}

func TestDecodeBatch_DropsMalformed(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"id": 1, "conv_id": "c", "role": "user", "text": "a"}`),
		json.RawMessage(`{"conv_id": "c", "role": "user", "text": "b"}`),
		json.RawMessage(`{"id": "x"}`),
		json.RawMessage(`{"id": 2, "conv_id": "c", "role": "pm_ai", "text": "c"}`),
	}

	events, malformed := DecodeBatch(raws)
	assert.Equal(t, 2, malformed)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, int64(2), events[1].ID)
}

func TestMarshalJSON_RoundTripsThroughDecode(t *testing.T) {
	lane := "main"
	animate := false
	in := Event{ID: 99, ConversationID: "c-9", Lane: &lane, Role: "motivator_ai", Text: "hi", Animate: &animate}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
