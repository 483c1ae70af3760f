// Package session models one protocol connection as an explicit state
// machine. Protocol clients push inbound traffic onto the session's event
// queue; the scenario goroutine that owns the session consumes it.
//
//	Connecting ──MarkOpen──▶ Open ──Close──▶ Closed
//	     │                     │
//	     └───────Fail──────────┴──────────▶ Failed
//
// Closed and Failed are terminal. Close is idempotent.
package session
