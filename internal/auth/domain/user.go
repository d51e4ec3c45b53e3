package domain

import "time"

type User struct {
	ID        string `json:"id" gorm:"primaryKey"`
	Email     string `json:"email" gorm:"uniqueIndex;not null"`
	Password  string `json:"-"` // Never return password in JSON
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Provider  string `json:"provider"` // "email" or "google"

	// GmailAccessToken is the short-lived OAuth access token, stored as-is.
	// GmailRefreshToken is encrypted at rest; decrypt before use.
	GmailAccessToken  string    `json:"-"`
	GmailRefreshToken string    `json:"-"`
	GmailTokenExpiry  time.Time `json:"-"`

	SyncEnabled bool `json:"sync_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasMailCredentials reports whether the user ever connected a mailbox.
func (u *User) HasMailCredentials() bool {
	return u.GmailRefreshToken != "" || u.GmailAccessToken != ""
}

type RefreshToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	ExpiresAt time.Time `json:"expires_at"`
}
