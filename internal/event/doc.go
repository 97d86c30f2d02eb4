// Package event defines the feed event model and its wire decoding.
//
// # Overview
//
// The backend assigns every message a global, monotonically increasing
// integer id. The same event may be delivered several times (by repeated
// polls, or by a poll overlapping a send response), so consumers de-duplicate
// on the id alone.
//
// # Wire Format
//
//	{"id": 42, "conv_id": "c-1", "lane": "consult:idea_ai", "role": "idea_ai", "text": "..."}
//
// conversation_id is accepted as an alias of conv_id. lane may be absent or
// null. animate is optional; false marks a message that must be shown
// without the progressive reveal.
//
// # Malformed Events
//
// An event whose id is missing or not an integer is malformed. Decode
// returns ErrMalformed for it and DecodeBatch drops it silently, so a
// malformed event never reaches the cursor or the view.
package event
