// Package session is the sync engine: it pulls events from the backend,
// de-duplicates them against a session-wide cursor, routes them to a
// conversation and lane, reconciles optimistic sends, and queues what
// should be shown on the reveal scheduler.
//
// # Data flow
//
//	Poll / Send / Create / AddAgent
//	        │ events
//	        ▼
//	dedupe.Cursor.Admit ──dup──▶ dropped
//	        │
//	closed conversation? ──yes──▶ ledger only
//	        │
//	lane.Router.Route ──unroutable──▶ ledger only
//	        │
//	main lane user message? ──echo──▶ ledger only (title still derived)
//	        │
//	reveal.Scheduler ──▶ sink ──▶ store transcript + conversation.Broadcaster
//
// Every admitted event is written to the store with its disposition, so
// the ledger explains why an event was or was not shown.
//
// # Concurrency
//
// Ingest and Close are serialized by one mutex, which makes the
// closed-id check and the close itself atomic with respect to routing.
// Backend calls run outside it, so a slow send never delays polling.
// Sends from different conversations may overlap; within one
// conversation a second send while the first is in flight returns
// ErrSendInFlight without side effects.
//
// # Failures
//
// Nothing here is fatal. A failed poll leaves the cursor where it was and
// is reported through the status string; the next tick retries. Failed
// sends and creations are shown as a system message in the affected
// conversation's main lane.
package session
