package repository

import emaildomain "mailpilot-backend/internal/email/domain"

// OperationRepository defines the interface for the sync operation queue.
type OperationRepository interface {
	Create(op *emaildomain.SyncOperation) error
	// GetByID returns the operation or (nil, nil) when absent
	GetByID(userID, id string) (*emaildomain.SyncOperation, error)
	// ClaimPending atomically claims up to limit pending operations for the
	// user, oldest first, and marks them processing in the same step so a
	// concurrent cycle cannot double-claim. Operations stuck in processing
	// past the staleness threshold are reclaimed too.
	ClaimPending(userID string, limit int) ([]*emaildomain.SyncOperation, error)
	// Complete marks the operation completed; a no-op if already terminal
	Complete(op *emaildomain.SyncOperation) error
	// Fail marks the operation failed with an error message; a no-op if
	// already terminal
	Fail(op *emaildomain.SyncOperation, errMsg string) error
	// CountByStatus returns the number of the user's operations per status
	CountByStatus(userID string) (map[string]int64, error)
}
