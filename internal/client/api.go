// ABOUTME: Backend endpoints: create, send, feed poll, agent invites and health
// ABOUTME: Responses carry an events array decoded leniently into event.Event values

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/2389/coven-lanes/internal/event"
)

// eventsResponse is the body shared by every event-returning endpoint.
type eventsResponse struct {
	ConversationID string            `json:"conversation_id,omitempty"`
	ConvID         string            `json:"conv_id,omitempty"`
	Events         []json.RawMessage `json:"events"`
}

type messageRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

type addAgentRequest struct {
	ConversationID string `json:"conversation_id"`
	RoleID         string `json:"role_id"`
}

type addAgentsRequest struct {
	ConversationID string   `json:"conversation_id"`
	RoleIDs        []string `json:"role_ids"`
}

// CreateConversation starts a conversation and returns its id and priming events.
func (c *Client) CreateConversation(ctx context.Context) (string, []event.Event, error) {
	var resp eventsResponse
	if err := c.do(ctx, "init", http.MethodPost, "/api/init", struct{}{}, &resp); err != nil {
		return "", nil, err
	}

	id := resp.ConversationID
	if id == "" {
		id = resp.ConvID
	}
	if id == "" {
		return "", nil, &TransportError{Op: "init", StatusCode: http.StatusOK, Err: errors.New("response has no conversation id")}
	}
	return id, c.decodeEvents("init", resp.Events), nil
}

// SendMessage submits text to a conversation. The returned events may
// belong to any conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string) ([]event.Event, error) {
	var resp eventsResponse
	req := messageRequest{ConversationID: conversationID, Text: text}
	if err := c.do(ctx, "message", http.MethodPost, "/api/message", req, &resp); err != nil {
		return nil, err
	}
	return c.decodeEvents("message", resp.Events), nil
}

// PollFeed returns every event with id greater than since.
func (c *Client) PollFeed(ctx context.Context, since int64) ([]event.Event, error) {
	var resp eventsResponse
	path := "/api/feed?" + url.Values{"since": {strconv.FormatInt(since, 10)}}.Encode()
	if err := c.do(ctx, "feed", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return c.decodeEvents("feed", resp.Events), nil
}

// AddAgent invites one specialist into a conversation.
func (c *Client) AddAgent(ctx context.Context, conversationID, roleID string) ([]event.Event, error) {
	var resp eventsResponse
	req := addAgentRequest{ConversationID: conversationID, RoleID: roleID}
	if err := c.do(ctx, "add-agent", http.MethodPost, "/api/add-agent", req, &resp); err != nil {
		return nil, err
	}
	return c.decodeEvents("add-agent", resp.Events), nil
}

// AddAgents invites several specialists into a conversation.
func (c *Client) AddAgents(ctx context.Context, conversationID string, roleIDs []string) ([]event.Event, error) {
	var resp eventsResponse
	req := addAgentsRequest{ConversationID: conversationID, RoleIDs: roleIDs}
	if err := c.do(ctx, "add-agents", http.MethodPost, "/api/add-agents", req, &resp); err != nil {
		return nil, err
	}
	return c.decodeEvents("add-agents", resp.Events), nil
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	if err := c.do(ctx, "healthz", http.MethodGet, "/api/healthz", nil, nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func (c *Client) decodeEvents(op string, raws []json.RawMessage) []event.Event {
	events, malformed := event.DecodeBatch(raws)
	if malformed > 0 {
		c.logger.Debug("dropped malformed events",
			"op", op,
			"malformed", malformed,
			"kept", len(events))
	}
	return events
}
