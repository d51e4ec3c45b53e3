package usecase

import (
	"context"

	emaildomain "mailpilot-backend/internal/email/domain"
)

// Sync cycle outcome status values.
const (
	// SyncStatusCompleted means changes were pulled, applied and the
	// checkpoint advanced.
	SyncStatusCompleted = "completed"
	// SyncStatusBootstrapped means a fresh cursor was established; the next
	// cycle starts incremental sync from it.
	SyncStatusBootstrapped = "bootstrapped"
	// SyncStatusCursorReset means the remote rejected the stored cursor; it
	// was cleared and the next cycle will bootstrap.
	SyncStatusCursorReset = "cursor_reset"
)

// SyncResult summarizes what one sync cycle did.
type SyncResult struct {
	Status           string `json:"status"`
	NewItems         int    `json:"new_items"`
	DeletedCount     int    `json:"deleted_count"`
	LabelChanges     int    `json:"label_changes"`
	OperationsPushed int    `json:"operations_pushed"`
	OperationsFailed int    `json:"operations_failed"`
	NewCursor        string `json:"new_cursor,omitempty"`
}

// OperationPayload carries the kind-specific parameters of a queued
// operation.
type OperationPayload struct {
	AddLabels    []string
	RemoveLabels []string
	Category     string
}

// SyncStatus reports the durable sync state of a user's mailbox.
type SyncStatus struct {
	Cursor          string           `json:"cursor,omitempty"`
	LastFetchedAt   string           `json:"last_fetched_at,omitempty"`
	OperationCounts map[string]int64 `json:"operation_counts"`
}

// SyncUsecase defines the interface for mailbox synchronization business logic
type SyncUsecase interface {
	// RunSyncCycle performs one push-settle-pull-apply cycle for the user.
	// Returns ErrCycleInProgress when the user's previous cycle is still
	// running.
	RunSyncCycle(ctx context.Context, userID string) (*SyncResult, error)

	// EnqueueOperation applies the local effect of a mutation and queues it
	// for the next push. Returns the operation id, or an empty id when the
	// mutation was a no-op and nothing was queued.
	EnqueueOperation(ctx context.Context, userID, mailItemID, kind string, payload OperationPayload) (string, error)

	GetOperation(userID, id string) (*emaildomain.SyncOperation, error)
	Status(userID string) (*SyncStatus, error)

	ListMailItems(userID string, limit, offset int) ([]*emaildomain.MailItem, int64, error)
	GetMailItem(userID, id string) (*emaildomain.MailItem, error)

	ListCategories(userID string) ([]*emaildomain.Category, error)
	CreateCategory(userID string, category *emaildomain.Category) error
	UpdateCategory(userID string, category *emaildomain.Category) error
	DeleteCategory(userID, name string) error

	// WatchMailbox registers the user's mailbox for push notifications on
	// the configured topic; StopWatchMailbox tears the registration down.
	WatchMailbox(ctx context.Context, userID string) error
	StopWatchMailbox(ctx context.Context, userID string) error
}
