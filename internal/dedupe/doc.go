// Package dedupe tracks which feed events the session has already processed.
//
// A Cursor holds the highest event id seen and the set of every id seen.
// Admit is the only way either changes: it returns true exactly once per id
// and advances the cursor to max(cursor, id). Ids may be arbitrarily sparse
// and may arrive out of order, so membership is tracked per id rather than
// by interval. The set lives for the whole session and is never pruned.
package dedupe
