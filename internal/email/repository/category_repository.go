package repository

import (
	"errors"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// categoryRepository implements CategoryRepository interface
type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a new instance of categoryRepository
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{
		db: db,
	}
}

func (r *categoryRepository) GetByName(userID, name string) (*emaildomain.Category, error) {
	var category emaildomain.Category
	err := r.db.Where("user_id = ? AND name = ?", userID, name).First(&category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) ListByUserID(userID string) ([]*emaildomain.Category, error) {
	var categories []*emaildomain.Category
	err := r.db.Where("user_id = ?", userID).Order("name ASC").Find(&categories).Error
	if err != nil {
		return nil, err
	}

	for _, c := range categories {
		if c.RemoveLabelIDs == nil {
			c.RemoveLabelIDs = emaildomain.StringArray{}
		}
	}
	return categories, nil
}

func (r *categoryRepository) Create(category *emaildomain.Category) error {
	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	if category.RemoveLabelIDs == nil {
		category.RemoveLabelIDs = emaildomain.StringArray{}
	}
	category.CreatedAt = time.Now()
	category.UpdatedAt = time.Now()
	return r.db.Create(category).Error
}

func (r *categoryRepository) Update(category *emaildomain.Category) error {
	if category.RemoveLabelIDs == nil {
		category.RemoveLabelIDs = emaildomain.StringArray{}
	}
	category.UpdatedAt = time.Now()
	return r.db.Save(category).Error
}

func (r *categoryRepository) Delete(userID, name string) error {
	return r.db.Where("user_id = ? AND name = ?", userID, name).Delete(&emaildomain.Category{}).Error
}
