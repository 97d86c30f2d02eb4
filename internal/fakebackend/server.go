// ABOUTME: Scripted in-memory conversation backend serving the feed HTTP API for local runs and E2E tests
// ABOUTME: Echoes user messages, answers as the motivator and replies from invited specialists on their lanes

package fakebackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-lanes/internal/auth"
	"github.com/2389/coven-lanes/internal/event"
	"github.com/2389/coven-lanes/internal/lane"
	"github.com/2389/coven-lanes/internal/roles"
)

// ContinueQuestion ends the motivator's summary once specialists are present.
const ContinueQuestion = "議論を継続しますか？"

// Options configures a Server.
type Options struct {
	// Verifier, when set, must accept the bearer credential of every
	// request except the health check.
	Verifier auth.Verifier
	Catalog  *roles.Catalog
	Logger   *slog.Logger
}

type conversationState struct {
	agents []string
}

// Server is an http.Handler holding one global, append-only feed.
type Server struct {
	mu     sync.Mutex
	nextID int64
	feed   []event.Event
	convs  map[string]*conversationState

	catalog *roles.Catalog
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates an empty backend.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Catalog == nil {
		opts.Catalog = roles.NewCatalog(nil, nil)
	}

	s := &Server{
		convs:   make(map[string]*conversationState),
		catalog: opts.Catalog,
		logger:  opts.Logger.With("component", "fakebackend"),
		mux:     http.NewServeMux(),
	}
	authed := auth.Middleware(opts.Verifier)
	s.mux.Handle("/api/init", authed(http.HandlerFunc(s.handleInit)))
	s.mux.Handle("/api/message", authed(http.HandlerFunc(s.handleMessage)))
	s.mux.Handle("/api/feed", authed(http.HandlerFunc(s.handleFeed)))
	s.mux.Handle("/api/add-agent", authed(http.HandlerFunc(s.handleAddAgent)))
	s.mux.Handle("/api/add-agents", authed(http.HandlerFunc(s.handleAddAgents)))
	s.mux.HandleFunc("/api/healthz", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Events returns a copy of the feed.
func (s *Server) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.feed)
}

// Inject appends an arbitrary event to the feed, e.g. a late reply for a
// conversation the client already closed.
func (s *Server) Inject(conversationID, laneTag, role, text string) event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(conversationID, laneTag, role, text)
}

type eventsResponse struct {
	ConversationID string        `json:"conversation_id,omitempty"`
	Events         []event.Event `json:"events"`
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

// handleInit handles POST /api/init.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	id := uuid.New().String()
	s.convs[id] = &conversationState{}
	welcome := s.appendLocked(id, "", roles.Motivator,
		"こんにちは、"+s.catalog.DisplayName(roles.Motivator, lane.Main())+"です。今日の議題を教えてください。")
	s.mu.Unlock()

	s.logger.Info("conversation created",
		"conversation_id", id,
		"subject", auth.SubjectFromContext(r.Context()))
	writeJSON(w, eventsResponse{ConversationID: id, Events: []event.Event{welcome}})
}

// handleMessage handles POST /api/message. The response carries the
// user's echo and the motivator's answer; specialist replies only show up
// in the feed.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		sendJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	s.mu.Lock()
	conv, ok := s.convs[req.ConversationID]
	if !ok {
		s.mu.Unlock()
		sendJSONDetail(w, http.StatusNotFound, "conversation not found")
		return
	}

	echoed := s.appendLocked(req.ConversationID, lane.MainTag, roles.User, text)
	answer := s.appendLocked(req.ConversationID, "", roles.Motivator, motivatorReply(text, len(conv.agents)))
	for _, role := range conv.agents {
		s.appendLocked(req.ConversationID, s.replyLane(role), role, specialistReply(s.catalog.Label(role), text))
	}
	agents := len(conv.agents)
	if agents > 0 {
		s.appendLocked(req.ConversationID, lane.MainTag, roles.Motivator, "各担当の意見が出そろいました。"+ContinueQuestion)
	}
	s.mu.Unlock()

	s.logger.Debug("message received",
		"conversation_id", req.ConversationID,
		"agents", agents)
	writeJSON(w, eventsResponse{Events: []event.Event{echoed, answer}})
}

// handleFeed handles GET /api/feed?since=N.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			sendJSONError(w, http.StatusBadRequest, "since must be an integer")
			return
		}
		since = n
	}

	s.mu.Lock()
	events := make([]event.Event, 0)
	for _, e := range s.feed {
		if e.ID > since {
			events = append(events, e)
		}
	}
	s.mu.Unlock()

	writeJSON(w, eventsResponse{Events: events})
}

// handleAddAgent handles POST /api/add-agent.
func (s *Server) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req addAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.invite(w, req.ConversationID, []string{req.RoleID})
}

// handleAddAgents handles POST /api/add-agents.
func (s *Server) handleAddAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req addAgentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.invite(w, req.ConversationID, req.RoleIDs)
}

func (s *Server) invite(w http.ResponseWriter, conversationID string, roleIDs []string) {
	if err := validateRoles(roleIDs); err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	conv, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		sendJSONDetail(w, http.StatusNotFound, "conversation not found")
		return
	}

	var events []event.Event
	for _, role := range roleIDs {
		if slices.Contains(conv.agents, role) {
			continue
		}
		conv.agents = append(conv.agents, role)
		label := s.catalog.Label(role)
		events = append(events,
			s.appendLocked(conversationID, "", roles.Motivator, label+"を相談窓に招待しました。"),
			s.appendLocked(conversationID, lane.ConsultPrefix+role, role, label+"です。よろしくお願いします。"),
		)
	}
	s.mu.Unlock()

	writeJSON(w, eventsResponse{Events: events})
}

// handleHealth handles GET /api/healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// appendLocked adds an event to the feed. An empty laneTag leaves the lane
// untagged so clients must infer it from the role. Callers hold s.mu.
func (s *Server) appendLocked(conversationID, laneTag, role, text string) event.Event {
	s.nextID++
	e := event.Event{
		ID:             s.nextID,
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
	}
	if laneTag != "" {
		tag := laneTag
		e.Lane = &tag
	}
	s.feed = append(s.feed, e)
	return e
}

// replyLane leaves known specialists untagged so clients infer the lane;
// other roles get an explicit consult tag.
func (s *Server) replyLane(role string) string {
	if slices.Contains(s.catalog.Specialists(), role) {
		return ""
	}
	return lane.ConsultPrefix + role
}

func validateRoles(roleIDs []string) error {
	if len(roleIDs) == 0 {
		return errors.New("role_ids is required")
	}
	for _, id := range roleIDs {
		if id == "" || strings.ContainsAny(id, ": ") {
			return fmt.Errorf("invalid role id %q", id)
		}
	}
	return nil
}

func motivatorReply(text string, agents int) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "markdown") || strings.Contains(text, "一覧") {
		return "論点を整理しました。\n\n- **目的** を決める\n- 担当を `相談窓` に振り分ける\n- 結論をまとめる\n"
	}
	if agents == 0 {
		return fmt.Sprintf("「%s」ですね。/add で専門家を招待すると相談窓で意見を聞けます。", text)
	}
	return fmt.Sprintf("「%s」について、各担当に意見を聞いてみます。", text)
}

func specialistReply(label, text string) string {
	return fmt.Sprintf("%sとしての意見です。\n\n> %s\n\nまずは**小さく試す**のがよいと思います。", label, text)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendJSONDetail writes the {"detail": ...} error shape some backends use.
func sendJSONDetail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": message})
}
