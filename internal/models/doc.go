// Package models defines domain entities and persistence interfaces for dashx.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): stable shapes handed to dashboard clients
//   - [PlayerState] : normalized "current playback" including the idle case
//   - [Track] : the subset of a Spotify track the dashboard renders
//   - [Device] : a Spotify Connect playback device
//   - [RecentTrack] : one entry of the listening history
//
// 2. Persistent Entities: database-backed models
//   - [AccessToken] : a cached access token keyed by a hash of client id and refresh token
//
// Persistent entities implement the [Model] interface providing IDs, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
package models
