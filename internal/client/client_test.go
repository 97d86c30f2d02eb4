// ABOUTME: Tests for the backend HTTP client against an httptest server
// ABOUTME: Request shapes, headers, malformed event dropping and transport error wrapping

package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithToken("secret"), WithSessionID("session-1"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestCreateConversation(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/init", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "session-1", r.Header.Get(SessionHeader))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"conversation_id":"c1","events":[
			{"id":1,"conv_id":"c1","lane":null,"role":"motivator_ai","text":"ようこそ"}
		]}`))
	})

	id, events, err := c.CreateConversation(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "c1", id)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].ID)
	assert.False(t, events[0].HasLane())
}

func TestCreateConversation_AcceptsConvID(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"conv_id": "c9", "events": []any{}})
	})

	id, events, err := c.CreateConversation(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "c9", id)
	assert.Empty(t, events)
}

func TestCreateConversation_MissingID(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"events": []any{}})
	})

	_, _, err := c.CreateConversation(t.Context())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSendMessage(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/message", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req messageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c1", req.ConversationID)
		assert.Equal(t, "hello", req.Text)

		writeJSON(w, map[string]any{"events": []map[string]any{
			{"id": 5, "conv_id": "c1", "role": "user", "text": "hello"},
			{"id": 6, "conv_id": "c2", "lane": "consult:idea_ai", "role": "idea_ai", "text": "idea"},
		}})
	})

	events, err := c.SendMessage(t.Context(), "c1", "hello")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "c2", events[1].ConversationID)
	require.True(t, events[1].HasLane())
	assert.Equal(t, "consult:idea_ai", *events[1].Lane)
}

func TestPollFeed_SendsCursorAndDropsMalformed(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/feed", r.URL.Path)
		assert.Equal(t, "41", r.URL.Query().Get("since"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[
			{"id":42,"conv_id":"c1","role":"idea_ai","text":"ok"},
			{"id":"43","conv_id":"c1","role":"idea_ai","text":"string id"},
			{"conv_id":"c1","role":"idea_ai","text":"no id"},
			{"id":44.5,"conv_id":"c1","role":"idea_ai","text":"fractional"},
			{"id":45,"conv_id":"c1","role":"writer_ai","text":"also ok","animate":false}
		]}`))
	})

	events, err := c.PollFeed(t.Context(), 41)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(42), events[0].ID)
	assert.Equal(t, int64(45), events[1].ID)
	assert.True(t, events[1].Instant())
}

func TestAddAgents(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/add-agent":
			var req addAgentRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "proof_ai", req.RoleID)
		case "/api/add-agents":
			var req addAgentsRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"idea_ai", "pm_ai"}, req.RoleIDs)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, map[string]any{"events": []any{}})
	})

	_, err := c.AddAgent(t.Context(), "c1", "proof_ai")
	require.NoError(t, err)
	_, err = c.AddAgents(t.Context(), "c1", []string{"idea_ai", "pm_ai"})
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/healthz", r.URL.Path)
		_, _ = w.Write([]byte("ok"))
	})
	assert.NoError(t, c.Health(t.Context()))
}

func TestStatusErrorsAreTransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		ctype   string
		body    string
		wantMsg string
	}{
		{"error field", "application/json", `{"error":"backend down"}`, "backend down"},
		{"detail field", "application/json", `{"detail":"conversation not found"}`, "conversation not found"},
		{"plain text", "text/plain", "gateway timeout", "gateway timeout"},
		{"empty body", "text/plain", "", "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.ctype)
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.PollFeed(t.Context(), 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)

			var te *TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, "feed", te.Op)
			assert.Equal(t, http.StatusBadGateway, te.StatusCode)
			assert.Contains(t, te.Error(), tt.wantMsg)
		})
	}
}

func TestUnreachableServerIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url)
	_, err := c.SendMessage(t.Context(), "c1", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.StatusCode)
}

func TestInvalidJSONIsTransportError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := c.PollFeed(t.Context(), 0)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestNew_GeneratesSessionID(t *testing.T) {
	a := New("http://localhost:8000/")
	b := New("http://localhost:8000")
	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
	assert.Equal(t, "http://localhost:8000", a.BaseURL())
}
