package repository

import (
	"errors"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// mailItemRepository implements MailItemRepository interface
type mailItemRepository struct {
	db *gorm.DB
}

// NewMailItemRepository creates a new instance of mailItemRepository
func NewMailItemRepository(db *gorm.DB) MailItemRepository {
	return &mailItemRepository{
		db: db,
	}
}

func (r *mailItemRepository) GetByID(userID, id string) (*emaildomain.MailItem, error) {
	var item emaildomain.MailItem
	err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *mailItemRepository) GetByRemoteID(userID, remoteID string) (*emaildomain.MailItem, error) {
	var item emaildomain.MailItem
	err := r.db.Where("user_id = ? AND remote_id = ?", userID, remoteID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *mailItemRepository) ExistingRemoteIDs(userID string, remoteIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(remoteIDs))
	if len(remoteIDs) == 0 {
		return existing, nil
	}

	var found []string
	err := r.db.Model(&emaildomain.MailItem{}).
		Where("user_id = ? AND remote_id IN ?", userID, remoteIDs).
		Pluck("remote_id", &found).Error
	if err != nil {
		return nil, err
	}

	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

func (r *mailItemRepository) List(userID string, limit, offset int) ([]*emaildomain.MailItem, int64, error) {
	var total int64
	if err := r.db.Model(&emaildomain.MailItem{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []*emaildomain.MailItem
	err := r.db.Where("user_id = ?", userID).
		Order("received_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *mailItemRepository) Create(item *emaildomain.MailItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Labels == nil {
		item.Labels = emaildomain.StringArray{}
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	return r.db.Create(item).Error
}

func (r *mailItemRepository) Update(item *emaildomain.MailItem) error {
	if item.Labels == nil {
		item.Labels = emaildomain.StringArray{}
	}
	item.UpdatedAt = time.Now()
	return r.db.Save(item).Error
}
