// Package store holds refresh-token credentials keyed by Spotify user id and the published now-playing snapshot.
//
// Three backends implement [Store]:
//   - [FileStore] : one file per credential under <path>/tokens and the snapshot in <path>/current_song
//   - [RedisStore] : keys token/<id> and current_song
//   - [SQLiteStore] : the credentials and snapshots tables via the repositories package
//
// [Open] selects the backend from the store.driver config value.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/tandem/internal/shared"
)

// Credentials is the read side of the credential source.
type Credentials interface {
	// List returns every stored user id in a stable order.
	List(ctx context.Context) ([]string, error)
	// Has reports whether a credential is stored for id.
	Has(ctx context.Context, id string) (bool, error)
	// Get returns the refresh token for id or [shared.ErrCredentialNotFound].
	Get(ctx context.Context, id string) (string, error)
}

// Display receives the now-playing payload published by the change detector.
type Display interface {
	PublishSnapshot(ctx context.Context, payload []byte) error
}

// Store is a complete backend.
type Store interface {
	Credentials
	Display

	// Put stores or replaces the refresh token for id.
	Put(ctx context.Context, id, token string) error
	// Delete removes the credential for id or returns [shared.ErrCredentialNotFound].
	Delete(ctx context.Context, id string) error
	// Snapshot returns the last published payload or [shared.ErrSnapshotNotFound].
	Snapshot(ctx context.Context) ([]byte, error)
	// Close releases connections and file handles.
	Close() error
}

// NullSnapshot is the payload published when nothing is playing.
var NullSnapshot = []byte("null")

// ValidateID rejects ids that cannot be used as a file name or key segment.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty id", shared.ErrInvalidKey)
	case len(id) > 128:
		return fmt.Errorf("%w: id too long", shared.ErrInvalidKey)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("%w: %q starts with a dot", shared.ErrInvalidKey, id)
	case strings.ContainsAny(id, "/\\\x00 \t\r\n"):
		return fmt.Errorf("%w: %q contains a separator or whitespace", shared.ErrInvalidKey, id)
	}
	return nil
}

// Open builds the backend selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *shared.Config) (Store, error) {
	switch cfg.Store.Driver {
	case "file", "":
		return NewFileStore(cfg.Store.Path)
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Database)
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", shared.ErrInvalidConfig, cfg.Store.Driver)
	}
}
