// ABOUTME: Conversation lifecycle manager: creation, focus, permanent close and per-conversation state
// ABOUTME: Owns tab numbering, the sending guard, echo markers, topic titles and known consult lanes

package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/2389/coven-lanes/internal/clock"
	"github.com/2389/coven-lanes/internal/echo"
	"github.com/2389/coven-lanes/internal/lane"
	"github.com/2389/coven-lanes/internal/topic"
)

var (
	// ErrClosed is returned when referencing a conversation that was closed.
	ErrClosed = errors.New("conversation closed")

	// ErrNotFound is returned for ids the manager has never seen.
	ErrNotFound = errors.New("conversation not found")
)

// DefaultTitleFormat formats the title a conversation starts with.
const DefaultTitleFormat = "タブ%d"

// Status is a conversation's lifecycle state.
type Status int

const (
	StatusActive Status = iota + 1
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	default:
		return "unborn"
	}
}

// state is the mutable record behind one conversation.
type state struct {
	id              string
	seq             int
	title           string
	titleCustomized bool
	echo            echo.Tracker
	lanes           []lane.Lane // consult lanes in discovery order
	sending         bool
	createdAt       time.Time
}

// Info is a read-only snapshot of a conversation.
type Info struct {
	ID              string
	Seq             int
	Status          Status
	Title           string
	TitleCustomized bool
	Lanes           []lane.Lane
	Sending         bool
	CreatedAt       time.Time
}

// CloseResult describes what the view should do after a close.
type CloseResult struct {
	// WasFocused is true when the closed conversation had focus.
	WasFocused bool
	// NextFocus is the conversation that now has focus, if any.
	NextFocus string
	// NeedNew is true when focus was lost and no active conversation remains.
	NeedNew bool
}

// Manager owns all conversation state for a session. It is safe for
// concurrent use.
type Manager struct {
	mu      sync.Mutex
	convs   map[string]*state
	closed  map[string]struct{}
	serial  int
	focused string
	clock   clock.Clock
	logger  *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(clk clock.Clock, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		convs:  make(map[string]*state),
		closed: make(map[string]struct{}),
		clock:  clk,
		logger: logger.With("component", "conversation"),
	}
}

// Ensure returns the conversation for id, creating it on first reference.
// created reports whether this call created it. A new conversation takes
// focus when activate is set or nothing else is focused. Closed ids yield
// ErrClosed.
func (m *Manager) Ensure(id string, activate bool) (info Info, created bool, err error) {
	if id == "" {
		return Info{}, false, fmt.Errorf("%w: empty conversation id", ErrNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.closed[id]; ok {
		return Info{}, false, ErrClosed
	}
	if st, ok := m.convs[id]; ok {
		if activate {
			m.focused = id
		}
		return st.snapshot(), false, nil
	}

	m.serial++
	st := &state{
		id:        id,
		seq:       m.serial,
		title:     fmt.Sprintf(DefaultTitleFormat, m.serial),
		createdAt: m.clock.Now(),
	}
	m.convs[id] = st
	if activate || m.focused == "" {
		m.focused = id
	}

	m.logger.Debug("conversation created",
		"conversation_id", id,
		"seq", st.seq,
		"focused", m.focused == id)

	return st.snapshot(), true, nil
}

// Get returns a snapshot of an active conversation.
func (m *Manager) Get(id string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.convs[id]
	if !ok {
		return Info{}, false
	}
	return st.snapshot(), true
}

// StatusOf reports the lifecycle state of id; zero means unborn.
func (m *Manager) StatusOf(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.closed[id]; ok {
		return StatusClosed
	}
	if _, ok := m.convs[id]; ok {
		return StatusActive
	}
	return 0
}

// IsClosed reports whether id was closed this session.
func (m *Manager) IsClosed(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.closed[id]
	return ok
}

// Close permanently closes id and moves focus if it had it. Focus goes to
// the remaining conversation with the lowest sequence number.
func (m *Manager) Close(id string) (CloseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.closed[id]; ok {
		return CloseResult{}, ErrClosed
	}
	if _, ok := m.convs[id]; !ok {
		return CloseResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(m.convs, id)
	m.closed[id] = struct{}{}

	var res CloseResult
	if m.focused == id {
		res.WasFocused = true
		m.focused = ""
		if next := m.lowestSeqLocked(); next != nil {
			m.focused = next.id
			res.NextFocus = next.id
		} else {
			res.NeedNew = true
		}
	} else {
		res.NextFocus = m.focused
	}

	m.logger.Info("conversation closed",
		"conversation_id", id,
		"next_focus", res.NextFocus,
		"need_new", res.NeedNew)

	return res, nil
}

// Focus moves focus to an active conversation.
func (m *Manager) Focus(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.closed[id]; ok {
		return ErrClosed
	}
	if _, ok := m.convs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.focused = id
	return nil
}

// Focused returns the focused conversation id, or "" when none.
func (m *Manager) Focused() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focused
}

// Active returns snapshots of all active conversations ordered by sequence.
func (m *Manager) Active() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.convs))
	for _, st := range m.convs {
		out = append(out, st.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// BySeq finds an active conversation by its tab number.
func (m *Manager) BySeq(seq int) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.convs {
		if st.seq == seq {
			return st.snapshot(), true
		}
	}
	return Info{}, false
}

// BeginSend sets the sending guard. It returns false when a send is
// already in flight for id or id is not active.
func (m *Manager) BeginSend(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.convs[id]
	if !ok || st.sending {
		return false
	}
	st.sending = true
	return true
}

// EndSend releases the sending guard. Safe to call after a close.
func (m *Manager) EndSend(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.convs[id]; ok {
		st.sending = false
	}
}

// RecordEcho notes an optimistic send of text for id.
func (m *Manager) RecordEcho(id, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.convs[id]; ok {
		st.echo.Record(text, m.clock.Now())
	}
}

// MatchEcho reports whether a user message on id's main lane is the echo
// of an optimistic send, consuming the one-shot marker on a match.
func (m *Manager) MatchEcho(id, text string, window time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.convs[id]
	if !ok {
		return false
	}
	return st.echo.Match(text, m.clock.Now(), window)
}

// DeriveTitle sets id's title from text while it still has the default
// title. It returns the new title and whether it changed. The title is
// derived at most once per conversation.
func (m *Manager) DeriveTitle(id, text string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.convs[id]
	if !ok || st.titleCustomized {
		return "", false
	}
	title := topic.Title(text)
	if title == "" {
		return "", false
	}
	st.title = title
	st.titleCustomized = true
	return title, true
}

// AddLane records a consult lane for id. It returns true the first time a
// lane is seen. The main lane is implicit and never recorded.
func (m *Manager) AddLane(id string, l lane.Lane) bool {
	if l.IsMain() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.convs[id]
	if !ok || slices.Contains(st.lanes, l) {
		return false
	}
	st.lanes = append(st.lanes, l)
	return true
}

func (m *Manager) lowestSeqLocked() *state {
	var best *state
	for _, st := range m.convs {
		if best == nil || st.seq < best.seq {
			best = st
		}
	}
	return best
}

func (st *state) snapshot() Info {
	return Info{
		ID:              st.id,
		Seq:             st.seq,
		Status:          StatusActive,
		Title:           st.title,
		TitleCustomized: st.titleCustomized,
		Lanes:           slices.Clone(st.lanes),
		Sending:         st.sending,
		CreatedAt:       st.createdAt,
	}
}
