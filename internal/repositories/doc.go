// Package repositories implements SQLite persistence for the sqlite store driver.
//
// Key Implementations:
//   - [CredentialRepository] : refresh tokens keyed by Spotify user id, with soft deletes
//   - [SnapshotRepository] : the published now-playing payloads, newest first
//
// Rows carry a UUID id and a sequence number. Sequence numbers provide stable, human-readable ordering independent of
// UUIDs and creation timestamps. [NextSequence] atomically increments per-table counters in dedicated sequence tables.
package repositories
