// Package flows contains pure-function orchestrators for every login path and session
// operation of the Engine.
//
// Each flow function (RunBootstrap, RunPasswordLogin, RunOTPLogin, etc.) accepts a typed
// dependency struct and returns either a result or a *session.AuthError. Flows never
// panic and never return untyped errors; a gateway failure that carries no AuthError is
// reported as KindNetworkUnavailable.
//
// # Architecture boundaries
//
// Flow functions coordinate the backend gateway, the OTP challenge store, the federated
// token provider, metrics, and latency observation. They do NOT own any of these
// resources and never touch the Session: committing results is the state machine's job,
// performed by the Engine on its own goroutine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Retry backend calls.
package flows
