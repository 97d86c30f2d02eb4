// ABOUTME: Session engine wiring cursor, lane router, lifecycle manager, reveal scheduler and ledger
// ABOUTME: Exposes conversation operations and read access for the view layer

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-lanes/internal/clock"
	"github.com/2389/coven-lanes/internal/conversation"
	"github.com/2389/coven-lanes/internal/dedupe"
	"github.com/2389/coven-lanes/internal/echo"
	"github.com/2389/coven-lanes/internal/event"
	"github.com/2389/coven-lanes/internal/lane"
	"github.com/2389/coven-lanes/internal/reveal"
	"github.com/2389/coven-lanes/internal/roles"
	"github.com/2389/coven-lanes/internal/store"
)

// DefaultPollInterval is how often Run polls the feed.
const DefaultPollInterval = 1200 * time.Millisecond

const statusConnecting = "connecting"

var (
	// ErrSendInFlight is returned when a conversation already has a send
	// outstanding. Nothing is shown or sent.
	ErrSendInFlight = errors.New("send already in flight")

	// ErrEmptyMessage is returned for blank message text.
	ErrEmptyMessage = errors.New("message is empty")
)

// Backend is the conversation service the session talks to.
// *client.Client implements it.
type Backend interface {
	CreateConversation(ctx context.Context) (string, []event.Event, error)
	SendMessage(ctx context.Context, conversationID, text string) ([]event.Event, error)
	PollFeed(ctx context.Context, since int64) ([]event.Event, error)
	AddAgent(ctx context.Context, conversationID, roleID string) ([]event.Event, error)
	AddAgents(ctx context.Context, conversationID string, roleIDs []string) ([]event.Event, error)
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	Clock   clock.Clock
	Store   store.Store // nil opens a private in-memory sqlite ledger
	Catalog *roles.Catalog

	PollInterval   time.Duration
	EchoWindow     time.Duration
	CharsPerSecond float64
	FrameInterval  time.Duration

	Logger *slog.Logger
}

// Session is one client session against a backend.
type Session struct {
	backend     Backend
	clock       clock.Clock
	store       store.Store
	ownsStore   bool
	catalog     *roles.Catalog
	router      *lane.Router
	cursor      *dedupe.Cursor
	convs       *conversation.Manager
	scheduler   *reveal.Scheduler
	broadcaster *conversation.Broadcaster

	pollInterval time.Duration
	echoWindow   time.Duration

	// ingestMu serializes routing against Close.
	ingestMu sync.Mutex

	statusMu sync.RWMutex
	status   string

	logger *slog.Logger
}

// New creates a session. It does not contact the backend; call Create to
// open the first conversation and Run to start polling.
func New(backend Backend, opts Options) (*Session, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Catalog == nil {
		opts.Catalog = roles.NewCatalog(nil, nil)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.EchoWindow <= 0 {
		opts.EchoWindow = echo.DefaultWindow
	}

	s := &Session{
		backend:      backend,
		clock:        opts.Clock,
		store:        opts.Store,
		catalog:      opts.Catalog,
		router:       lane.NewRouter(opts.Catalog.Specialists()),
		cursor:       dedupe.NewCursor(),
		convs:        conversation.NewManager(opts.Clock, opts.Logger),
		broadcaster:  conversation.NewBroadcaster(opts.Logger),
		pollInterval: opts.PollInterval,
		echoWindow:   opts.EchoWindow,
		status:       statusConnecting,
		logger:       opts.Logger.With("component", "session"),
	}

	if s.store == nil {
		ledger, err := store.NewSQLiteStore(store.MemoryPath)
		if err != nil {
			return nil, fmt.Errorf("opening session ledger: %w", err)
		}
		s.store = ledger
		s.ownsStore = true
	}

	s.scheduler = reveal.NewScheduler(opts.Clock, &viewSink{s: s}, reveal.Options{
		CharsPerSecond: opts.CharsPerSecond,
		FrameInterval:  opts.FrameInterval,
		Logger:         opts.Logger,
	})

	return s, nil
}

// Close stops all reveals and closes subscriber channels. A ledger opened
// by New is closed too.
func (s *Session) Close() error {
	s.scheduler.Close()
	s.broadcaster.Close()
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("closing session ledger: %w", err)
		}
	}
	return nil
}

// Subscribe streams view updates for one conversation, or for all of them
// with conversation.AllConversations. The channel closes when ctx ends.
func (s *Session) Subscribe(ctx context.Context, conversationID string) <-chan *conversation.Update {
	ch, _ := s.broadcaster.Subscribe(ctx, conversationID)
	return ch
}

// Status returns the connectivity summary, e.g. "live · last=42".
func (s *Session) Status() string {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Cursor returns the highest event id processed.
func (s *Session) Cursor() int64 { return s.cursor.Last() }

// Conversations returns the active conversations in tab order.
func (s *Session) Conversations() []conversation.Info { return s.convs.Active() }

// Conversation returns one active conversation.
func (s *Session) Conversation(id string) (conversation.Info, bool) { return s.convs.Get(id) }

// ConversationBySeq finds an active conversation by tab number.
func (s *Session) ConversationBySeq(seq int) (conversation.Info, bool) { return s.convs.BySeq(seq) }

// Focused returns the focused conversation id, or "".
func (s *Session) Focused() string { return s.convs.Focused() }

// Catalog returns the role catalog used for display names.
func (s *Session) Catalog() *roles.Catalog { return s.catalog }

// Focus moves focus to an active conversation.
func (s *Session) Focus(id string) error {
	if err := s.convs.Focus(id); err != nil {
		return err
	}
	s.publishConversation(conversation.UpdateActivated, id)
	return nil
}

// Messages returns the messages shown so far in a conversation, in the
// order their reveal began. A zero lane.Lane selects the main lane; use
// AllMessages for every lane.
func (s *Session) Messages(ctx context.Context, conversationID string, l lane.Lane) ([]*store.MessageRecord, error) {
	return s.store.ListMessages(ctx, conversationID, l.String())
}

// AllMessages returns a conversation's messages across every lane.
func (s *Session) AllMessages(ctx context.Context, conversationID string) ([]*store.MessageRecord, error) {
	return s.store.ListMessages(ctx, conversationID, "")
}

// Ledger returns the most recent admitted events for a conversation with
// their dispositions.
func (s *Session) Ledger(ctx context.Context, conversationID string, limit int) ([]*store.EventRecord, error) {
	return s.store.ListEvents(ctx, conversationID, limit)
}

// Pending counts messages waiting for or in reveal in a conversation.
func (s *Session) Pending(conversationID string) int { return s.scheduler.Pending(conversationID) }

func (s *Session) setStatus(status string) {
	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()

	s.broadcaster.Publish(&conversation.Update{
		Kind:   conversation.UpdateStatus,
		Status: status,
		At:     s.clock.Now(),
	})
}

// publishConversation publishes a lifecycle update carrying the
// conversation's current tab number and title.
func (s *Session) publishConversation(kind conversation.UpdateKind, id string) {
	u := &conversation.Update{
		Kind:           kind,
		ConversationID: id,
		At:             s.clock.Now(),
	}
	if info, ok := s.convs.Get(id); ok {
		u.Seq = info.Seq
		u.Title = info.Title
	}
	s.broadcaster.Publish(u)
}
