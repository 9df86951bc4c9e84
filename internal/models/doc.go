// Package models defines the playback entities and persisted credential type shared by the sync engine, store and web server.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): values read from the Spotify player API
//   - [Playback] : The current playback state of one account
//   - [TrackInfo] : Display metadata for the playing track
//   - [Device] : A Spotify Connect playback device
//   - [Snapshot] : The (track id, playing) pair the change detector compares
//
// 2. Persistent Entities: records with identity and timestamps
//   - [Credential] : A stored refresh token keyed by Spotify user id
//
// Persistent entities implement the [Model] interface.
package models
