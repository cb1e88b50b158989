// Package middleware adapts the engine's route guard to net/http for server-rendered pages.
//
// # Guards
//
//   - [Guard] evaluates an explicit route.
//   - [RequireSignedIn] and [RequireRole] cover protected pages.
//   - [PublicOnly] sends signed-in users from the login page to their home.
//
// Every guard calls Engine.Decide, so role checks and the profile-completion gate apply the
// same way as in-process navigation. Admitted requests carry the session snapshot in their
// context, see [SessionFromContext].
//
// # What this package must NOT do
//
//   - Start logins or change session state.
//   - Inspect tokens directly.
package middleware
