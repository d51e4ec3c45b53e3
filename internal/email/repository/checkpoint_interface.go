package repository

import emaildomain "mailpilot-backend/internal/email/domain"

// CheckpointRepository defines the interface for sync checkpoint storage.
type CheckpointRepository interface {
	// GetByUserID returns the user's checkpoint or (nil, nil) when the user
	// has never completed a cycle
	GetByUserID(userID string) (*emaildomain.SyncCheckpoint, error)
	// Save creates or updates the user's checkpoint
	Save(checkpoint *emaildomain.SyncCheckpoint) error
	// ClearCursor nulls out the stored cursor so the next cycle bootstraps
	ClearCursor(userID string) error
}
