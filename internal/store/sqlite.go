package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/tandem/internal/repositories"
	"github.com/desertthunder/tandem/internal/shared"
)

// snapshotRetention is the number of published snapshots the sqlite backend keeps.
const snapshotRetention = 100

// SQLiteStore adapts the credential and snapshot repositories to [Store].
type SQLiteStore struct {
	db          *sql.DB
	credentials *repositories.CredentialRepository
	snapshots   *repositories.SnapshotRepository
}

// NewSQLiteStore opens and migrates the database at cfg.Path.
func NewSQLiteStore(ctx context.Context, cfg shared.DatabaseConfig) (*SQLiteStore, error) {
	db, err := shared.OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStoreFromDB(db), nil
}

// NewSQLiteStoreFromDB wraps an already migrated database.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:          db,
		credentials: repositories.NewCredentialRepository(db),
		snapshots:   repositories.NewSnapshotRepository(db, snapshotRetention),
	}
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	creds, err := s.credentials.List(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.UserID())
	}
	return ids, nil
}

func (s *SQLiteStore) Has(ctx context.Context, id string) (bool, error) {
	_, err := s.credentials.GetByUserID(ctx, id)
	if errors.Is(err, shared.ErrCredentialNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (string, error) {
	c, err := s.credentials.GetByUserID(ctx, id)
	if err != nil {
		return "", err
	}
	return c.RefreshToken(), nil
}

func (s *SQLiteStore) Put(ctx context.Context, id, token string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if _, err := s.credentials.Upsert(ctx, id, token); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	return s.credentials.Delete(ctx, id)
}

func (s *SQLiteStore) PublishSnapshot(ctx context.Context, payload []byte) error {
	_, err := s.snapshots.Publish(ctx, payload)
	return err
}

func (s *SQLiteStore) Snapshot(ctx context.Context) ([]byte, error) {
	rec, err := s.snapshots.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return rec.Payload, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
