// Package guard decides, from a session snapshot alone, whether a navigation may render.
//
// # Decisions
//
//   - [Policy.Route] enforces authentication and role requirements of a [Route].
//   - [Policy.ProfileGate] forces incomplete profiles onto the completion page.
//   - [Policy.Evaluate] composes both, route first.
//
// While the session is bootstrapping every evaluation returns [Loading], so nothing
// renders before the identity is known.
//
// # What this package must NOT do
//
//   - Mutate the session or dispatch actions.
//   - Perform I/O of any kind.
package guard
