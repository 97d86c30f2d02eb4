// Package conversation owns per-conversation client state and the update
// stream the view layer renders from.
//
// # Lifecycle
//
// A conversation is unborn until it is first referenced, either by explicit
// creation or by the first feed event naming it. It is then active until
// the user closes it. Closed is terminal: the id is remembered for the rest
// of the session and Ensure refuses to bring it back.
//
//	unborn ──Ensure──▶ active ──Close──▶ closed
//
// Tab sequence numbers come from a serial counter that only increases, so a
// number freed by a close is never handed out again.
//
// # Manager
//
// Manager is the only owner of conversation state. Callers read snapshots
// (Info) and mutate through methods: focus, the per-conversation sending
// guard, optimistic echo markers, title derivation and lane discovery.
//
// # Broadcaster
//
// Broadcaster fans *Update values out to subscribers. Subscribe with a
// conversation id to follow one conversation, or with AllConversations to
// follow everything. Delivery is non-blocking; slow subscribers drop
// updates and should treat the session's message history as authoritative.
package conversation
