package repository

import emaildomain "mailpilot-backend/internal/email/domain"

// CategoryRepository defines the interface for user-defined category
// configuration.
type CategoryRepository interface {
	// GetByName returns the category or (nil, nil) when absent
	GetByName(userID, name string) (*emaildomain.Category, error)
	ListByUserID(userID string) ([]*emaildomain.Category, error)
	Create(category *emaildomain.Category) error
	Update(category *emaildomain.Category) error
	Delete(userID, name string) error
}
