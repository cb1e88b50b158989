// Package authcore is the client-side authentication core: it restores a stored session at
// startup, runs password, one-time-code, and federated logins against a backend, watches
// session expiry, and decides which routes may render.
//
// An [Engine] is built once through [Builder.Build] and owns a single action loop. Every
// state change, whether it comes from a public method, a backend response, a federated
// provider event, or an expiry timer, is applied on that loop, so check-then-act sequences
// never interleave. Backend calls run on worker goroutines and re-enter the loop tagged
// with the session generation they started under; results from superseded or logged-out
// attempts are discarded.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], [Outcome], and
// the login attempt types. The state machine and expiry monitor live in session, wire
// access in gateway, token persistence in tokenstore, and flow orchestration under
// internal/.
//
// # What this package must NOT do
//
//   - Write the token store outside the state machine's commit step.
//   - Mutate a published Session snapshot.
//   - Render UI; callers consume snapshots, warnings, and guard decisions.
package authcore
