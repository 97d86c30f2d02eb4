// ABOUTME: Lane router classifying feed events into a conversation and lane
// ABOUTME: Explicit lane tags win; untagged specialist roles fall back to consult:<role>

package lane

import (
	"errors"
	"fmt"

	"github.com/2389/coven-lanes/internal/event"
)

// ErrUnroutable is returned for lane tags the client does not understand.
var ErrUnroutable = errors.New("unroutable lane")

// Route is where an event belongs.
type Route struct {
	ConversationID string
	Lane           Lane
}

// Router assigns events to lanes. It holds no mutable state.
type Router struct {
	specialists map[string]struct{}
}

// NewRouter creates a router that infers consultation lanes for the given
// specialist roles when an event carries no lane tag.
func NewRouter(specialists []string) *Router {
	set := make(map[string]struct{}, len(specialists))
	for _, role := range specialists {
		set[role] = struct{}{}
	}
	return &Router{specialists: set}
}

// Route classifies ev. fallbackConversation is used when the event does not
// name its conversation.
func (r *Router) Route(ev event.Event, fallbackConversation string) (Route, error) {
	convID := ev.ConversationID
	if convID == "" {
		convID = fallbackConversation
	}

	if ev.HasLane() {
		l, ok := Parse(*ev.Lane)
		if !ok {
			return Route{ConversationID: convID}, fmt.Errorf("%w: %q", ErrUnroutable, *ev.Lane)
		}
		return Route{ConversationID: convID, Lane: l}, nil
	}

	if r.IsSpecialist(ev.Role) {
		return Route{ConversationID: convID, Lane: Consult(ev.Role)}, nil
	}
	return Route{ConversationID: convID, Lane: Main()}, nil
}

// IsSpecialist reports whether role gets a consultation lane by inference.
func (r *Router) IsSpecialist(role string) bool {
	_, ok := r.specialists[role]
	return ok
}
