package domain

import "time"

// Operation status values. Transitions: pending -> processing -> completed or
// failed. retrying is part of the schema but the push executor never writes
// it: a cycle makes at most one attempt-with-retries per operation, and a
// fresh cycle is the retry mechanism. Kept so a future requeue job can use it
// without a migration.
const (
	OpStatusPending    = "pending"
	OpStatusProcessing = "processing"
	OpStatusCompleted  = "completed"
	OpStatusFailed     = "failed"
	OpStatusRetrying   = "retrying"
)

// Operation kinds understood by the push executor.
const (
	OpKindTrash          = "trash"
	OpKindArchive        = "archive"
	OpKindUpdateLabels   = "update_labels"
	OpKindUpdateCategory = "update_category"
	OpKindMarkRead       = "mark_read"
	OpKindMarkUnread     = "mark_unread"
)

// SyncOperation is a queued local-to-remote mutation intent with its own
// lifecycle. Several operations may target the same MailItem; the executor
// processes them FIFO by creation time.
type SyncOperation struct {
	ID           string      `json:"id" gorm:"primaryKey"`
	UserID       string      `json:"user_id" gorm:"index:idx_op_user_status;not null"`
	MailItemID   string      `json:"mail_item_id" gorm:"index;not null"`
	Kind         string      `json:"kind" gorm:"not null"`
	AddLabels    StringArray `json:"add_labels" gorm:"type:text"`
	RemoveLabels StringArray `json:"remove_labels" gorm:"type:text"`
	Category     string      `json:"category"` // target category for update_category
	Status       string      `json:"status" gorm:"index:idx_op_user_status;not null"`
	LastError    string      `json:"last_error,omitempty"`
	Attempts     int         `json:"attempts"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Terminal reports whether the operation reached a final status.
func (o *SyncOperation) Terminal() bool {
	return o.Status == OpStatusCompleted || o.Status == OpStatusFailed
}
