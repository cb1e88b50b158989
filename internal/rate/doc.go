// Package rate provides fixed-window attempt limiting over Redis or process memory.
//
// The engine uses it to cap how often one-time codes are requested per email, so a
// stuck button or a script cannot make the backend send a flood of codes.
//
// # What this package must NOT do
//
//   - Know about sessions or login flows.
//   - Retry or sleep on behalf of callers.
package rate
