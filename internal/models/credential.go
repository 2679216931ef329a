package models

import "time"

// Credential holds a form owner's Airtable personal access token. Token
// acquisition and refresh happen outside this service; sync treats a missing
// or expired credential as a transient, externally-caused condition.
type Credential struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	OwnerID   string `gorm:"type:char(36);not null;uniqueIndex"`
	Token     string `gorm:"size:255;not null"`
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name for Credential
func (Credential) TableName() string {
	return "credentials"
}

// Usable reports whether the token exists and has not expired.
func (c *Credential) Usable(now time.Time) bool {
	if c == nil || c.Token == "" {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}
