// Package talyn is the Go client for the Talyn HR/EOR platform. It owns the
// client-side session core: token lifecycle, the single HTTP gateway to the
// REST API, the session state machine, and the route-guard decisions that
// frontend surfaces use to gate navigation.
//
// Session lifecycle:
//   - The bearer token lives in a TokenStore (in-memory, or SQLite-backed via
//     CredentialStore) and is judged locally with a 30 second expiry buffer
//     before any network round trip.
//   - Store centralizes every session transition: CheckAuth, Login, SignUp,
//     Logout, invitation accept/decline, and the two employer onboarding
//     steps. Operations return result values rather than panicking, so
//     callers branch on Success.
//
// Failure classification:
//   - The Client distinguishes authentication failures (401 with a known
//     token-failure message) from authorization failures (401 with a
//     business-rule message). Only the former clears the session; the
//     matching rules live in a single classifier so a structured error-code
//     contract can replace message sniffing later.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter the Store uses to describe
//     login, logout, invitation, and onboarding events. Sinks run best-effort
//     (errors are logged) so you can forward to analytics without blocking
//     the session flow.
package talyn
