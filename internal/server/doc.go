// Package server provides the dashx HTTP API: routing, middleware, the Spotify proxy routes and the
// OAuth callback used during setup.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Spotify Routes
//
// [SpotifyHandler] serves four POST routes under /api/spotify. Each accepts
// {refreshToken, clientId?, clientSecret?} and resolves credentials field by field from the body,
// then from configuration.
//
//   - token: the token exchange result
//   - control: {success, action} for an action in play|pause|next|previous|shuffle|repeat
//   - player-state: the normalized player state
//   - recent-tracks: the untouched recently played payload
//
// Errors are JSON {"error", "details"}. A control call with no active device answers
// 404 {"error":"no_active_device","message"} so clients can prompt the user to open a player.
//
// # Middleware
//
// [NewAPI] wraps every route with request ids, one log line per request, panic recovery,
// security headers, Prometheus request metrics and per-client rate limiting.
//
// # OAuth Callback Handler
//
// [OAuthHandler] completes the authorization-code flow for `dashx spotify auth`. It validates the
// state parameter, exchanges the code and sends the result through a channel. Only the first
// callback is processed.
package server
