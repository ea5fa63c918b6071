// Package services talks to the Spotify accounts service and Web API on behalf of dashboard clients.
//
// # Token Exchange
//
// [SpotifyService.Exchange] trades a long-lived refresh token for a short-lived access token with a
// single refresh grant. Client credentials go in an HTTP Basic header, never in the body. Nothing is
// retried; a rejected grant surfaces as [shared.TokenRefreshError].
//
// # Authenticated Proxy
//
// [SpotifyService.CallAPI] obtains an access token and performs one Web API request with it. The raw
// response is returned whatever its status so each caller maps statuses its own way. Without a
// [TokenCache] every call performs a fresh exchange; with one, tokens are reused until a minute
// before expiry. Cache backends are in-process ([MemoryTokenCache]), SQLite ([SQLiteTokenCache]) and
// Redis ([RedisTokenCache]).
//
// # Playback
//
//   - [SpotifyService.Control] maps an [Action] to one mutating call, reading current state first for
//     shuffle and repeat.
//   - [SpotifyService.PlayerState] normalizes /me/player into [models.PlayerState].
//   - [SpotifyService.RecentTracks] passes the recently played payload through untouched.
//
// # Clients
//
// [APIService] calls a running dashx server. [RemoteDevice] implements [player.Device] over the Web
// API for the terminal player.
package services
