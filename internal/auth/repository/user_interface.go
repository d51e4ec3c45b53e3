package repository

import authdomain "mailpilot-backend/internal/auth/domain"

// UserRepository defines the interface for user storage.
type UserRepository interface {
	Create(user *authdomain.User) error
	// FindByEmail returns the user or (nil, nil) when absent
	FindByEmail(email string) (*authdomain.User, error)
	// FindByID returns the user or (nil, nil) when absent
	FindByID(id string) (*authdomain.User, error)
	Update(user *authdomain.User) error
	// ListSyncEnabled returns users with background sync turned on
	ListSyncEnabled() ([]*authdomain.User, error)

	SaveRefreshToken(token *authdomain.RefreshToken) error
	FindRefreshToken(token string) (*authdomain.RefreshToken, error)
	DeleteRefreshToken(token string) error
	DeleteRefreshTokensByUser(userID string) error
	ReplaceRefreshToken(token *authdomain.RefreshToken) error
}
