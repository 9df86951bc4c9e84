package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tandem/internal/shared"
)

// SnapshotRecord is one published now-playing payload.
type SnapshotRecord struct {
	ID        string
	Sequence  int
	Payload   []byte
	CreatedAt time.Time
}

// SnapshotRepository stores published payloads. The row with the highest sequence is the current snapshot.
type SnapshotRepository struct {
	db   *sql.DB
	keep int
}

// NewSnapshotRepository creates a [SnapshotRepository] retaining the newest keep rows (keep <= 0 retains all).
func NewSnapshotRepository(db *sql.DB, keep int) *SnapshotRepository {
	return &SnapshotRepository{db: db, keep: keep}
}

// Publish appends payload as the newest snapshot and prunes older rows.
func (r *SnapshotRepository) Publish(ctx context.Context, payload []byte) (*SnapshotRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequenceTx(ctx, tx, "snapshots")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	rec := &SnapshotRecord{
		ID:        shared.GenerateID(),
		Sequence:  sequence,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, sequence, payload, created_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Sequence, string(rec.Payload), rec.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if r.keep > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE sequence <= ?`, sequence-r.keep); err != nil {
			return nil, fmt.Errorf("failed to prune snapshots: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return rec, nil
}

// Latest returns the newest snapshot.
func (r *SnapshotRepository) Latest(ctx context.Context) (*SnapshotRecord, error) {
	var (
		rec     SnapshotRecord
		payload string
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT id, sequence, payload, created_at FROM snapshots ORDER BY sequence DESC LIMIT 1`,
	).Scan(&rec.ID, &rec.Sequence, &payload, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	rec.Payload = []byte(payload)
	return &rec, nil
}

// Count returns the number of retained snapshots.
func (r *SnapshotRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}
