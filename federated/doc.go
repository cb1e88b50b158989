// Package federated connects an external identity provider to the engine.
//
// A [Source] turns provider notifications into [Event] values: sign-in with an opaque
// provider token, or sign-out. A [Listener] runs one Source and hands every event to a
// sink, which the engine serializes onto its action loop. A [TokenProvider] yields a
// provider token on demand for user-initiated federated login.
//
// Provider tokens are opaque here. Nothing in this package parses or verifies them; the
// backend exchange is the only consumer.
package federated
