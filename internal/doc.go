// Package internal groups the engine's private building blocks.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: login, bootstrap, and session operations as plain functions over Deps
//   - metrics: lock-free counters and latency histograms
//   - rate: fixed-window limiting for one-time-code requests
//   - stores: outstanding one-time-code challenges, in memory or Redis
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
