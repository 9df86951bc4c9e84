package models

import (
	"errors"
	"time"
)

var _ Model = (*Credential)(nil)

// Credential is a stored refresh token for one Spotify account.
//
// The reserved leader id (usually "main") names the leader's credential; every other id is a follower.
type Credential struct {
	id           string
	sequence     int
	userID       string
	refreshToken string
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewCredential creates a credential for userID with the given refresh token.
func NewCredential(userID, refreshToken string) *Credential {
	now := time.Now()
	return &Credential{userID: userID, refreshToken: refreshToken, createdAt: now, updatedAt: now}
}

func (c *Credential) ID() string { return c.id }
func (c *Credential) Sequence() int { return c.sequence }
func (c *Credential) UserID() string { return c.userID }
func (c *Credential) RefreshToken() string { return c.refreshToken }
func (c *Credential) CreatedAt() time.Time { return c.createdAt }
func (c *Credential) UpdatedAt() time.Time { return c.updatedAt }
func (c *Credential) DeletedAt() *time.Time { return c.deletedAt }
func (c *Credential) SetID(id string) { c.id = id }
func (c *Credential) SetSequence(seq int) { c.sequence = seq }
func (c *Credential) SetRefreshToken(t string) { c.refreshToken = t }
func (c *Credential) SetCreatedAt(t time.Time) { c.createdAt = t }
func (c *Credential) SetUpdatedAt(t time.Time) { c.updatedAt = t }
func (c *Credential) SetDeletedAt(t *time.Time) { c.deletedAt = t }

// Validate checks that the credential names an account and carries a token.
func (c *Credential) Validate() error {
	if c.userID == "" {
		return errors.New("user id is required")
	}
	if c.refreshToken == "" {
		return errors.New("refresh token is required")
	}
	return nil
}
