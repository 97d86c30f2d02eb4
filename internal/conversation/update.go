// ABOUTME: Update values published to the view layer
// ABOUTME: Lifecycle transitions, lane discovery, reveal progress and connectivity status

package conversation

import (
	"time"

	"github.com/2389/coven-lanes/internal/lane"
	"github.com/2389/coven-lanes/internal/reveal"
)

// UpdateKind identifies what changed.
type UpdateKind string

const (
	UpdateCreated         UpdateKind = "created"
	UpdateActivated       UpdateKind = "activated"
	UpdateClosed          UpdateKind = "closed"
	UpdateRetitled        UpdateKind = "retitled"
	UpdateLaneOpened      UpdateKind = "lane_opened"
	UpdateMessageStarted  UpdateKind = "message_started"
	UpdateMessageProgress UpdateKind = "message_progress"
	UpdateMessageFinished UpdateKind = "message_finished"
	UpdateStatus          UpdateKind = "status"
)

// ContinuePrompt is attached to a motivator message asking whether the
// consultation should go on. Roles lists the conversation's consult lanes
// at the time the prompt arrived.
type ContinuePrompt struct {
	Roles []string
}

// Update is one observation for the view layer. Fields not relevant to
// Kind are zero.
type Update struct {
	Kind           UpdateKind
	ConversationID string
	Seq            int
	Title          string
	Lane           lane.Lane
	Message        *reveal.Message
	Visible        int // runes shown so far, for UpdateMessageProgress
	Outcome        reveal.Outcome
	Prompt         *ContinuePrompt
	Status         string
	At             time.Time
}
