package usecase

import (
	"context"
	"fmt"
	"log"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/email/repository"
	"mailpilot-backend/pkg/retry"
)

// pushBatchSize caps how many queued operations one cycle pushes.
const pushBatchSize = 20

// PushStats counts what a push pass did with the claimed batch.
type PushStats struct {
	Pushed int
	Failed int
}

type pushExecutor struct {
	mailItemRepo  repository.MailItemRepository
	operationRepo repository.OperationRepository
	categoryRepo  repository.CategoryRepository
	retryPolicy   retry.Policy
	batchSize     int
}

func newPushExecutor(
	mailItemRepo repository.MailItemRepository,
	operationRepo repository.OperationRepository,
	categoryRepo repository.CategoryRepository,
	policy retry.Policy,
) *pushExecutor {
	return &pushExecutor{
		mailItemRepo:  mailItemRepo,
		operationRepo: operationRepo,
		categoryRepo:  categoryRepo,
		retryPolicy:   policy,
		batchSize:     pushBatchSize,
	}
}

// Run claims a batch of pending operations and replays each against the
// remote mailbox. A failed operation is marked FAILED and the batch
// continues; only local store errors abort the pass.
func (e *pushExecutor) Run(ctx context.Context, client emaildomain.MailClient, userID string) (PushStats, error) {
	var stats PushStats

	ops, err := e.operationRepo.ClaimPending(userID, e.batchSize)
	if err != nil {
		return stats, fmt.Errorf("claim pending operations: %w", err)
	}

	for _, op := range ops {
		remoteID, add, remove, resolveErr := e.resolve(op)
		if resolveErr != nil {
			if failErr := e.operationRepo.Fail(op, resolveErr.Error()); failErr != nil {
				return stats, fmt.Errorf("mark operation %s failed: %w", op.ID, failErr)
			}
			stats.Failed++
			log.Printf("[Push] Operation %s (%s) failed: %v", op.ID, op.Kind, resolveErr)
			continue
		}

		err := e.retryPolicy.Do(ctx, "modify labels", func() error {
			return client.ModifyLabels(ctx, remoteID, add, remove)
		})
		if err != nil {
			if failErr := e.operationRepo.Fail(op, err.Error()); failErr != nil {
				return stats, fmt.Errorf("mark operation %s failed: %w", op.ID, failErr)
			}
			stats.Failed++
			log.Printf("[Push] Operation %s (%s) failed on remote: %v", op.ID, op.Kind, err)
			continue
		}

		if err := e.operationRepo.Complete(op); err != nil {
			return stats, fmt.Errorf("mark operation %s completed: %w", op.ID, err)
		}
		stats.Pushed++
	}
	return stats, nil
}

// resolve translates a queued operation into the remote label modification it
// stands for. Operations referencing a mail item that no longer exists
// resolve to an error so the caller marks them FAILED.
func (e *pushExecutor) resolve(op *emaildomain.SyncOperation) (remoteID string, add, remove []string, err error) {
	item, err := e.mailItemRepo.GetByID(op.UserID, op.MailItemID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("load mail item: %w", err)
	}
	if item == nil {
		return "", nil, nil, fmt.Errorf("mail item %s not found", op.MailItemID)
	}

	switch op.Kind {
	case emaildomain.OpKindTrash:
		add = []string{emaildomain.LabelTrash}
		remove = []string{emaildomain.LabelInbox}
	case emaildomain.OpKindArchive:
		remove = []string{emaildomain.LabelInbox}
	case emaildomain.OpKindUpdateLabels:
		add = op.AddLabels
		remove = op.RemoveLabels
	case emaildomain.OpKindUpdateCategory:
		custom, lookupErr := e.customCategory(op.UserID, op.Category)
		if lookupErr != nil {
			return "", nil, nil, lookupErr
		}
		add, remove = labelChangesForCategory(op.Category, custom)
	case emaildomain.OpKindMarkRead:
		remove = []string{emaildomain.LabelUnread}
	case emaildomain.OpKindMarkUnread:
		add = []string{emaildomain.LabelUnread}
	default:
		return "", nil, nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return item.RemoteID, add, remove, nil
}

func (e *pushExecutor) customCategory(userID, category string) (*emaildomain.Category, error) {
	switch category {
	case emaildomain.CategoryTrashed, emaildomain.CategoryArchived, emaildomain.CategoryInbox:
		return nil, nil
	}
	custom, err := e.categoryRepo.GetByName(userID, category)
	if err != nil {
		return nil, fmt.Errorf("load category %q: %w", category, err)
	}
	return custom, nil
}
