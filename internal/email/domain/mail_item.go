package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Well-known Gmail label IDs the sync engine cares about.
const (
	LabelInbox   = "INBOX"
	LabelTrash   = "TRASH"
	LabelUnread  = "UNREAD"
	LabelStarred = "STARRED"
)

// Built-in categories with fixed label mappings. Any other category name is
// user-defined and resolved through the Category table.
const (
	CategoryTrashed  = "trashed"
	CategoryArchived = "archived"
	CategoryInbox    = "inbox"
)

// StringArray is a custom type to handle JSON array in GORM
type StringArray []string

// Value implements driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*a = []string{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Contains reports whether the label set includes the given label.
func (a StringArray) Contains(label string) bool {
	for _, l := range a {
		if l == label {
			return true
		}
	}
	return false
}

// MailItem is the local representation of one remote mailbox message.
// Remote deletions never remove the row; they add the TRASH label and set the
// category to trashed, so downstream consumers keep their history.
type MailItem struct {
	ID         string      `json:"id" gorm:"primaryKey"`
	UserID     string      `json:"user_id" gorm:"index;uniqueIndex:idx_mail_user_remote;not null"`
	RemoteID   string      `json:"remote_id" gorm:"uniqueIndex:idx_mail_user_remote;not null"`
	ThreadID   string      `json:"thread_id" gorm:"index"`
	Subject    string      `json:"subject"`
	From       string      `json:"from"`
	FromName   string      `json:"from_name"`
	Snippet    string      `json:"snippet"`
	Labels     StringArray `json:"labels" gorm:"type:text"`
	Category   string      `json:"category" gorm:"index"`
	IsRead     bool        `json:"is_read"`
	ReceivedAt time.Time   `json:"received_at"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
