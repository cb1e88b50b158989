// Package audit relays session lifecycle events to a caller-supplied sink.
//
// The engine builds an [Event] for logins, logouts, forced logouts, bootstrap results,
// code requests, ignored provider sign-ins, extensions, and profile updates, then hands
// it to a [Dispatcher]. The dispatcher owns the only goroutine that calls the [Sink].
//
// # What this package must NOT do
//
//   - Decide which events exist. The engine does.
//   - Import authcore or any sibling internal package.
package audit
