// Package repositories implements SQLite persistence for domain entities.
//
// [AccessTokenRepository] stores cached access tokens for the "sqlite" token cache backend.
// Rows are keyed by a hash of the client id and refresh token, so the refresh token never reaches disk.
// Expired rows are filtered out on read and removed by [AccessTokenRepository.DeleteExpired].
package repositories
