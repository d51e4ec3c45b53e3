package repository

import (
	"errors"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// opStaleAfter is how long an operation may sit in processing before it is
// considered abandoned by a timed-out cycle and becomes claimable again.
const opStaleAfter = 10 * time.Minute

// operationRepository implements OperationRepository interface
type operationRepository struct {
	db *gorm.DB
}

// NewOperationRepository creates a new instance of operationRepository
func NewOperationRepository(db *gorm.DB) OperationRepository {
	return &operationRepository{
		db: db,
	}
}

func (r *operationRepository) Create(op *emaildomain.SyncOperation) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.Status == "" {
		op.Status = emaildomain.OpStatusPending
	}
	if op.AddLabels == nil {
		op.AddLabels = emaildomain.StringArray{}
	}
	if op.RemoveLabels == nil {
		op.RemoveLabels = emaildomain.StringArray{}
	}
	op.CreatedAt = time.Now()
	op.UpdatedAt = time.Now()
	return r.db.Create(op).Error
}

func (r *operationRepository) GetByID(userID, id string) (*emaildomain.SyncOperation, error) {
	var op emaildomain.SyncOperation
	err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&op).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

func (r *operationRepository) ClaimPending(userID string, limit int) ([]*emaildomain.SyncOperation, error) {
	var claimed []*emaildomain.SyncOperation

	err := r.db.Transaction(func(tx *gorm.DB) error {
		staleBefore := time.Now().Add(-opStaleAfter)

		var ops []*emaildomain.SyncOperation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("user_id = ? AND (status = ? OR (status = ? AND updated_at < ?))",
				userID, emaildomain.OpStatusPending, emaildomain.OpStatusProcessing, staleBefore).
			Order("created_at ASC").
			Limit(limit).
			Find(&ops).Error
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			return nil
		}

		now := time.Now()
		ids := make([]string, len(ops))
		for i, op := range ops {
			ids[i] = op.ID
			op.Status = emaildomain.OpStatusProcessing
			op.UpdatedAt = now
		}

		err = tx.Model(&emaildomain.SyncOperation{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     emaildomain.OpStatusProcessing,
				"updated_at": now,
			}).Error
		if err != nil {
			return err
		}

		claimed = ops
		return nil
	})

	return claimed, err
}

func (r *operationRepository) Complete(op *emaildomain.SyncOperation) error {
	return r.finish(op, emaildomain.OpStatusCompleted, "")
}

func (r *operationRepository) Fail(op *emaildomain.SyncOperation, errMsg string) error {
	return r.finish(op, emaildomain.OpStatusFailed, errMsg)
}

// finish transitions an operation to a terminal status. The WHERE clause
// excludes already-terminal rows, which makes repeated calls no-ops.
func (r *operationRepository) finish(op *emaildomain.SyncOperation, status, errMsg string) error {
	now := time.Now()
	result := r.db.Model(&emaildomain.SyncOperation{}).
		Where("id = ? AND status NOT IN ?", op.ID,
			[]string{emaildomain.OpStatusCompleted, emaildomain.OpStatusFailed}).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": errMsg,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		op.Status = status
		op.LastError = errMsg
		op.Attempts++
		op.UpdatedAt = now
	}
	return nil
}

func (r *operationRepository) CountByStatus(userID string) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.Model(&emaildomain.SyncOperation{}).
		Select("status, count(*) as count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
