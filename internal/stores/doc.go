// Package stores provides the short-lived, single-use OTP challenge records kept by the
// login orchestrator.
//
// # Design
//
// A challenge records that a one-time code was requested for an email. Issuing again
// replaces the previous challenge. Consume removes the challenge atomically and reports
// whether it existed, so a given code submission reaches the backend at most once.
//
// The memory store serves a single client process. The Redis store keeps a versioned,
// binary-encoded record per email and consumes it inside a WATCH/MULTI transaction, so
// several processes sharing one device key still consume each challenge once.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Store the one-time code itself; codes live only with the backend.
//   - Decide authentication outcomes; that belongs to internal/flows.
package stores
