package repository

import (
	"errors"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// checkpointRepository implements CheckpointRepository interface
type checkpointRepository struct {
	db *gorm.DB
}

// NewCheckpointRepository creates a new instance of checkpointRepository
func NewCheckpointRepository(db *gorm.DB) CheckpointRepository {
	return &checkpointRepository{
		db: db,
	}
}

func (r *checkpointRepository) GetByUserID(userID string) (*emaildomain.SyncCheckpoint, error) {
	var checkpoint emaildomain.SyncCheckpoint
	err := r.db.Where("user_id = ?", userID).First(&checkpoint).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &checkpoint, nil
}

func (r *checkpointRepository) Save(checkpoint *emaildomain.SyncCheckpoint) error {
	now := time.Now()
	if checkpoint.ID == "" {
		// Lazily created on the user's first successful cycle.
		existing, err := r.GetByUserID(checkpoint.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			checkpoint.ID = existing.ID
			checkpoint.CreatedAt = existing.CreatedAt
		} else {
			checkpoint.ID = uuid.New().String()
			checkpoint.CreatedAt = now
		}
	}
	checkpoint.UpdatedAt = now
	return r.db.Save(checkpoint).Error
}

func (r *checkpointRepository) ClearCursor(userID string) error {
	return r.db.Model(&emaildomain.SyncCheckpoint{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"cursor":     "",
			"updated_at": time.Now(),
		}).Error
}
