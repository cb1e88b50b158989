// Package session holds the authoritative in-memory authentication record and the
// state machine that transitions it.
//
// # Model
//
// A [Session] is a value. Every transition produces a full replacement; nothing in this
// package mutates a committed Session in place, and snapshots handed to callers carry
// their own copy of the [UserProfile]. The token and the user are always set together.
//
// # Machine
//
// [Machine] owns the current Session, the transition table, and the monotonic generation
// counter used to discard results of superseded or logged-out attempts. Commit hooks run
// strictly after a transition is visible; the token persistence hook is the only writer
// of the durable token record.
//
// # Monitor
//
// [Monitor] schedules the expiry warning and the forced logout of an authenticated
// session. It never touches the Session directly: it reports through callbacks that the
// owner serializes onto its own action queue.
//
// # What this package must NOT do
//
//   - Perform network I/O (backend calls belong to the engine and flows).
//   - Run transitions concurrently: Machine and Monitor are confined to one goroutine.
//   - Import authcore or any sibling package that imports it.
package session
