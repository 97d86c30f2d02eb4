// Package client talks to the conversation backend over HTTP/JSON.
//
// # Endpoints
//
//   - POST /api/init                      start a conversation
//   - POST /api/message                   submit a user message
//   - GET  /api/feed?since=N              events with id > N, all conversations
//   - POST /api/add-agent, /api/add-agents invite specialists
//   - GET  /api/healthz                   liveness
//
// Every endpoint except healthz answers with {"events": [...]}. Events are
// decoded with event.DecodeBatch, so malformed entries are dropped here and
// never reach the engine.
//
// # Errors
//
// Any network failure, non-2xx status or undecodable body is returned as a
// *TransportError, which matches ErrTransport under errors.Is.
//
// # Tailnet
//
// NewTailnetHTTPClient joins a tailnet with tsnet and returns an
// *http.Client that dials through it, for backends only reachable there.
package client
