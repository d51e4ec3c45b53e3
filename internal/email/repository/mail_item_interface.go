package repository

import emaildomain "mailpilot-backend/internal/email/domain"

// MailItemRepository defines the interface for local mail item storage.
// All lookups are scoped by user.
type MailItemRepository interface {
	// GetByID returns the item or (nil, nil) when absent
	GetByID(userID, id string) (*emaildomain.MailItem, error)
	// GetByRemoteID returns the item for a remote id or (nil, nil) when absent
	GetByRemoteID(userID, remoteID string) (*emaildomain.MailItem, error)
	// ExistingRemoteIDs reports which of the given remote ids are already stored
	ExistingRemoteIDs(userID string, remoteIDs []string) (map[string]bool, error)
	// List returns items ordered by received time descending
	List(userID string, limit, offset int) ([]*emaildomain.MailItem, int64, error)
	Create(item *emaildomain.MailItem) error
	Update(item *emaildomain.MailItem) error
}
