package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tandem/internal/models"
	"github.com/desertthunder/tandem/internal/shared"
)

// CredentialRepository persists [models.Credential] rows.
//
// user_id is unique across live and soft-deleted rows, so storing a token for a deleted user revives the row.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new [CredentialRepository] with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialColumns = `id, sequence, user_id, refresh_token, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		id, userID, refreshToken string
		sequence                 int
		createdAt, updatedAt     time.Time
		deletedAt                sql.NullTime
	)

	if err := row.Scan(&id, &sequence, &userID, &refreshToken, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}

	c := models.NewCredential(userID, refreshToken)
	c.SetID(id)
	c.SetSequence(sequence)
	c.SetCreatedAt(createdAt)
	c.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		c.SetDeletedAt(&deletedAt.Time)
	}
	return c, nil
}

// Create inserts a new credential with generated ID and sequence
func (r *CredentialRepository) Create(ctx context.Context, c *models.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "credentials")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	c.SetID(shared.GenerateID())
	c.SetSequence(sequence)

	query := `
		INSERT INTO credentials (id, sequence, user_id, refresh_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query, c.ID(), sequence, c.UserID(), c.RefreshToken(), c.CreatedAt(), c.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	return nil
}

// GetByUserID retrieves the live credential for a Spotify user id.
func (r *CredentialRepository) GetByUserID(ctx context.Context, userID string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE user_id = ? AND deleted_at IS NULL`

	c, err := scanCredential(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}
	return c, nil
}

// Upsert stores refreshToken for userID, creating the row or reviving a soft-deleted one.
func (r *CredentialRepository) Upsert(ctx context.Context, userID, refreshToken string) (*models.Credential, error) {
	c := models.NewCredential(userID, refreshToken)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE credentials
		SET refresh_token = ?, updated_at = ?, deleted_at = NULL
		WHERE user_id = ?
	`, refreshToken, now, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		if err := r.Create(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}

	return r.GetByUserID(ctx, userID)
}

// Delete soft-deletes the credential of a Spotify user id
func (r *CredentialRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE credentials
		SET deleted_at = ?
		WHERE user_id = ? AND deleted_at IS NULL
	`, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, userID)
	}

	return nil
}

// List retrieves all live credentials ordered by sequence
func (r *CredentialRepository) List(ctx context.Context) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE deleted_at IS NULL ORDER BY sequence ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var credentials []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		credentials = append(credentials, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return credentials, nil
}
