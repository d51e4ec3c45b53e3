package domain

import "time"

// Category is a user-defined category backed by a Gmail label. The built-in
// categories (trashed, archived) have fixed label mappings and no row here.
type Category struct {
	ID             string      `json:"id" gorm:"primaryKey"`
	UserID         string      `json:"user_id" gorm:"index:idx_user_category;not null"`
	Name           string      `json:"name" gorm:"index:idx_user_category;not null"`
	GmailLabelID   string      `json:"gmail_label_id,omitempty" gorm:"default:''"`  // label added when an item enters this category
	RemoveLabelIDs StringArray `json:"remove_label_ids,omitempty" gorm:"type:text"` // labels removed when an item enters this category
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
