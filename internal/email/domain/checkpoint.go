package domain

import "time"

// SyncCheckpoint is the durable marker a user's incremental pull resumes
// from. Cursor is the opaque change cursor issued by the remote side (Gmail
// historyId); empty means the user has never successfully bootstrapped.
// Only the orchestrator writes it, and only after a fully successful cycle.
type SyncCheckpoint struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"uniqueIndex;not null"`
	Cursor        string    `json:"cursor"`
	LastFetchedAt time.Time `json:"last_fetched_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
