package usecase

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	authdomain "mailpilot-backend/internal/auth/domain"
	authrepository "mailpilot-backend/internal/auth/repository"
	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/email/repository"
	"mailpilot-backend/pkg/ai"
	"mailpilot-backend/pkg/config"
	"mailpilot-backend/pkg/crypto"
	"mailpilot-backend/pkg/retry"
)

// settleDelay is how long a cycle waits between pushing and pulling, so the
// remote side's change feed reflects the pushed mutations and the pull sees
// them as already-applied echoes.
const settleDelay = 2 * time.Second

type syncUsecase struct {
	mailItemRepo   repository.MailItemRepository
	operationRepo  repository.OperationRepository
	checkpointRepo repository.CheckpointRepository
	categoryRepo   repository.CategoryRepository
	userRepo       authrepository.UserRepository

	provider    emaildomain.MailProvider
	categorizer ai.CategorizerService
	cfg         *config.Config

	puller *changePuller
	pusher *pushExecutor

	// cycles holds one mutex per user so at most one cycle runs per mailbox.
	mu     sync.Mutex
	cycles map[string]*sync.Mutex

	// settle is swapped out in tests.
	settle func(ctx context.Context, d time.Duration)
}

// NewSyncUsecase creates a new sync usecase instance
func NewSyncUsecase(
	mailItemRepo repository.MailItemRepository,
	operationRepo repository.OperationRepository,
	checkpointRepo repository.CheckpointRepository,
	categoryRepo repository.CategoryRepository,
	userRepo authrepository.UserRepository,
	provider emaildomain.MailProvider,
	categorizer ai.CategorizerService,
	cfg *config.Config,
) SyncUsecase {
	policy := retry.NewPolicy()
	return &syncUsecase{
		mailItemRepo:   mailItemRepo,
		operationRepo:  operationRepo,
		checkpointRepo: checkpointRepo,
		categoryRepo:   categoryRepo,
		userRepo:       userRepo,
		provider:       provider,
		categorizer:    categorizer,
		cfg:            cfg,
		puller:         newChangePuller(mailItemRepo, policy),
		pusher:         newPushExecutor(mailItemRepo, operationRepo, categoryRepo, policy),
		cycles:         make(map[string]*sync.Mutex),
		settle: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

func (u *syncUsecase) RunSyncCycle(ctx context.Context, userID string) (*SyncResult, error) {
	unlock, err := u.lockCycle(userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	if !user.HasMailCredentials() {
		return nil, fmt.Errorf("user %s has no mailbox connected", userID)
	}

	client, err := u.clientForUser(ctx, user)
	if err != nil {
		return nil, err
	}
	// Persist any token refresh regardless of how the cycle ends.
	defer u.persistRefreshedCredentials(user, client)

	result := &SyncResult{Status: SyncStatusCompleted}

	stats, err := u.pusher.Run(ctx, client, userID)
	if err != nil {
		return nil, err
	}
	result.OperationsPushed = stats.Pushed
	result.OperationsFailed = stats.Failed
	if stats.Pushed > 0 {
		u.settle(ctx, settleDelay)
	}

	cursor := ""
	checkpoint, err := u.checkpointRepo.GetByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if checkpoint != nil {
		cursor = checkpoint.Cursor
	}

	pulled, err := u.puller.Pull(ctx, client, userID, cursor)
	if err != nil {
		return nil, err
	}
	if pulled.NeedsBootstrap {
		if err := u.checkpointRepo.ClearCursor(userID); err != nil {
			return nil, fmt.Errorf("clear cursor: %w", err)
		}
		result.Status = SyncStatusCursorReset
		log.Printf("[Sync] Cursor reset for user %s, next cycle bootstraps", userID)
		return result, nil
	}

	if pulled.Bootstrapped {
		result.Status = SyncStatusBootstrapped
	} else {
		if err := u.applyChanges(ctx, userID, pulled, result); err != nil {
			return nil, err
		}
	}

	// The checkpoint advances only after the whole window was applied. On
	// failure the old cursor stays and the next cycle re-pulls the window;
	// applying is idempotent so replays converge.
	if err := u.checkpointRepo.Save(&emaildomain.SyncCheckpoint{
		UserID:        userID,
		Cursor:        pulled.NewCursor,
		LastFetchedAt: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("commit checkpoint: %w", err)
	}
	result.NewCursor = pulled.NewCursor
	return result, nil
}

// applyChanges folds a pulled window into the local store: deletions first,
// then label deltas, then new messages.
func (u *syncUsecase) applyChanges(ctx context.Context, userID string, pulled *PullResult, result *SyncResult) error {
	for _, remoteID := range pulled.DeletedRemoteIDs {
		item, err := u.mailItemRepo.GetByRemoteID(userID, remoteID)
		if err != nil {
			return fmt.Errorf("load mail item %s: %w", remoteID, err)
		}
		if item == nil {
			continue
		}
		if !enforceCategory(item, emaildomain.CategoryTrashed, nil) {
			continue
		}
		if err := u.mailItemRepo.Update(item); err != nil {
			return fmt.Errorf("apply deletion %s: %w", remoteID, err)
		}
		result.DeletedCount++
	}

	for remoteID, delta := range pulled.LabelDeltas {
		item, err := u.mailItemRepo.GetByRemoteID(userID, remoteID)
		if err != nil {
			return fmt.Errorf("load mail item %s: %w", remoteID, err)
		}
		if item == nil {
			log.Printf("[Sync] Label change for unknown message %s, skipping", remoteID)
			continue
		}
		labels, changed := applyLabelChange(item.Labels, delta.Added, delta.Removed)
		if !changed {
			continue
		}
		item.Labels = labels
		item.IsRead = !labels.Contains(emaildomain.LabelUnread)
		u.reconcileCategory(ctx, userID, item)
		if err := u.mailItemRepo.Update(item); err != nil {
			return fmt.Errorf("apply label change %s: %w", remoteID, err)
		}
		result.LabelChanges++
	}

	for _, msg := range pulled.NewMessages {
		item := &emaildomain.MailItem{
			UserID:     userID,
			RemoteID:   msg.RemoteID,
			ThreadID:   msg.ThreadID,
			Subject:    msg.Subject,
			From:       msg.From,
			FromName:   msg.FromName,
			Snippet:    msg.Snippet,
			Labels:     msg.Labels,
			IsRead:     msg.IsRead,
			ReceivedAt: msg.ReceivedAt,
		}
		u.reconcileCategory(ctx, userID, item)
		if err := u.mailItemRepo.Create(item); err != nil {
			return fmt.Errorf("store message %s: %w", msg.RemoteID, err)
		}
		result.NewItems++
	}
	return nil
}

// reconcileCategory derives the item's category from its labels. Trash and
// the absence of the inbox label always win; an item coming back into the
// inbox from a built-in state is re-categorized.
func (u *syncUsecase) reconcileCategory(ctx context.Context, userID string, item *emaildomain.MailItem) {
	switch {
	case item.Labels.Contains(emaildomain.LabelTrash):
		item.Category = emaildomain.CategoryTrashed
	case !item.Labels.Contains(emaildomain.LabelInbox):
		item.Category = emaildomain.CategoryArchived
	case item.Category == "" || item.Category == emaildomain.CategoryTrashed || item.Category == emaildomain.CategoryArchived:
		item.Category = u.categorize(ctx, userID, item)
	}
}

// categorize picks a category for an inboxed item, preferring the user's
// custom categories and falling back to inbox.
func (u *syncUsecase) categorize(ctx context.Context, userID string, item *emaildomain.MailItem) string {
	candidates := []string{emaildomain.CategoryInbox}
	custom, err := u.categoryRepo.ListByUserID(userID)
	if err != nil {
		log.Printf("[Sync] List categories for %s: %v", userID, err)
	}
	for _, c := range custom {
		candidates = append(candidates, c.Name)
	}

	category, err := u.categorizer.Categorize(ctx, ai.MessageSnapshot{
		Subject: item.Subject,
		From:    item.From,
		Snippet: item.Snippet,
		Labels:  item.Labels,
	}, candidates)
	if err != nil || category == "" {
		return emaildomain.CategoryInbox
	}
	return category
}

func (u *syncUsecase) EnqueueOperation(ctx context.Context, userID, mailItemID, kind string, payload OperationPayload) (string, error) {
	item, err := u.mailItemRepo.GetByID(userID, mailItemID)
	if err != nil {
		return "", fmt.Errorf("load mail item: %w", err)
	}
	if item == nil {
		return "", emaildomain.ErrMailItemNotFound
	}

	op := &emaildomain.SyncOperation{
		UserID:     userID,
		MailItemID: mailItemID,
		Kind:       kind,
		Status:     emaildomain.OpStatusPending,
	}

	// Local effect first, so the UI reflects the mutation immediately. The
	// queue replays it against the remote on the next cycle. When the item is
	// already in the requested state there is nothing to push: the empty id
	// tells the caller no operation was queued.
	switch kind {
	case emaildomain.OpKindTrash:
		if !enforceCategory(item, emaildomain.CategoryTrashed, nil) {
			return "", nil
		}
	case emaildomain.OpKindArchive:
		if !enforceCategory(item, emaildomain.CategoryArchived, nil) {
			return "", nil
		}
	case emaildomain.OpKindUpdateLabels:
		labels, changed := applyLabelChange(item.Labels, payload.AddLabels, payload.RemoveLabels)
		if !changed {
			return "", nil
		}
		item.Labels = labels
		item.IsRead = !labels.Contains(emaildomain.LabelUnread)
		u.reconcileCategory(ctx, userID, item)
		op.AddLabels = payload.AddLabels
		op.RemoveLabels = payload.RemoveLabels
	case emaildomain.OpKindUpdateCategory:
		custom, err := u.lookupCustomCategory(userID, payload.Category)
		if err != nil {
			return "", err
		}
		if !enforceCategory(item, payload.Category, custom) {
			return "", nil
		}
		op.Category = payload.Category
	case emaildomain.OpKindMarkRead:
		labels, changed := applyLabelChange(item.Labels, nil, []string{emaildomain.LabelUnread})
		if !changed {
			return "", nil
		}
		item.Labels = labels
		item.IsRead = true
	case emaildomain.OpKindMarkUnread:
		labels, changed := applyLabelChange(item.Labels, []string{emaildomain.LabelUnread}, nil)
		if !changed {
			return "", nil
		}
		item.Labels = labels
		item.IsRead = false
	default:
		return "", fmt.Errorf("unknown operation kind %q", kind)
	}

	if err := u.mailItemRepo.Update(item); err != nil {
		return "", fmt.Errorf("apply local effect: %w", err)
	}
	if err := u.operationRepo.Create(op); err != nil {
		return "", fmt.Errorf("queue operation: %w", err)
	}
	return op.ID, nil
}

func (u *syncUsecase) lookupCustomCategory(userID, category string) (*emaildomain.Category, error) {
	switch category {
	case emaildomain.CategoryTrashed, emaildomain.CategoryArchived, emaildomain.CategoryInbox:
		return nil, nil
	}
	custom, err := u.categoryRepo.GetByName(userID, category)
	if err != nil {
		return nil, fmt.Errorf("load category %q: %w", category, err)
	}
	if custom == nil {
		return nil, fmt.Errorf("category %q not found", category)
	}
	return custom, nil
}

func (u *syncUsecase) GetOperation(userID, id string) (*emaildomain.SyncOperation, error) {
	return u.operationRepo.GetByID(userID, id)
}

func (u *syncUsecase) Status(userID string) (*SyncStatus, error) {
	counts, err := u.operationRepo.CountByStatus(userID)
	if err != nil {
		return nil, fmt.Errorf("count operations: %w", err)
	}
	status := &SyncStatus{OperationCounts: counts}

	checkpoint, err := u.checkpointRepo.GetByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if checkpoint != nil {
		status.Cursor = checkpoint.Cursor
		if !checkpoint.LastFetchedAt.IsZero() {
			status.LastFetchedAt = checkpoint.LastFetchedAt.Format(time.RFC3339)
		}
	}
	return status, nil
}

func (u *syncUsecase) ListMailItems(userID string, limit, offset int) ([]*emaildomain.MailItem, int64, error) {
	return u.mailItemRepo.List(userID, limit, offset)
}

func (u *syncUsecase) GetMailItem(userID, id string) (*emaildomain.MailItem, error) {
	item, err := u.mailItemRepo.GetByID(userID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, emaildomain.ErrMailItemNotFound
	}
	return item, nil
}

func (u *syncUsecase) ListCategories(userID string) ([]*emaildomain.Category, error) {
	return u.categoryRepo.ListByUserID(userID)
}

func (u *syncUsecase) CreateCategory(userID string, category *emaildomain.Category) error {
	category.UserID = userID
	return u.categoryRepo.Create(category)
}

func (u *syncUsecase) UpdateCategory(userID string, category *emaildomain.Category) error {
	existing, err := u.categoryRepo.GetByName(userID, category.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("category %q not found", category.Name)
	}
	existing.GmailLabelID = category.GmailLabelID
	existing.RemoveLabelIDs = category.RemoveLabelIDs
	return u.categoryRepo.Update(existing)
}

func (u *syncUsecase) DeleteCategory(userID, name string) error {
	return u.categoryRepo.Delete(userID, name)
}

func (u *syncUsecase) WatchMailbox(ctx context.Context, userID string) error {
	if u.cfg.PubsubTopic == "" {
		return fmt.Errorf("push notifications are not configured")
	}
	client, user, err := u.clientForUserID(ctx, userID)
	if err != nil {
		return err
	}
	defer u.persistRefreshedCredentials(user, client)
	return client.Watch(ctx, u.cfg.PubsubTopic)
}

func (u *syncUsecase) StopWatchMailbox(ctx context.Context, userID string) error {
	client, user, err := u.clientForUserID(ctx, userID)
	if err != nil {
		return err
	}
	defer u.persistRefreshedCredentials(user, client)
	return client.StopWatch(ctx)
}

func (u *syncUsecase) clientForUserID(ctx context.Context, userID string) (emaildomain.MailClient, *authdomain.User, error) {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, nil, fmt.Errorf("user %s not found", userID)
	}
	if !user.HasMailCredentials() {
		return nil, nil, fmt.Errorf("user %s has no mailbox connected", userID)
	}
	client, err := u.clientForUser(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return client, user, nil
}

func (u *syncUsecase) clientForUser(ctx context.Context, user *authdomain.User) (emaildomain.MailClient, error) {
	refreshToken := user.GmailRefreshToken
	if refreshToken != "" && u.cfg.EncryptionKey != "" {
		decrypted, err := crypto.Decrypt(refreshToken, u.cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
		refreshToken = decrypted
	}
	client, err := u.provider.ClientFor(ctx, emaildomain.Credentials{
		AccessToken:  user.GmailAccessToken,
		RefreshToken: refreshToken,
		Expiry:       user.GmailTokenExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("build mail client: %w", err)
	}
	return client, nil
}

// persistRefreshedCredentials stores a token refresh observed on the client.
// Failures are logged, not propagated: the refreshed token is still cached in
// the client layer and the next cycle refreshes again at worst.
func (u *syncUsecase) persistRefreshedCredentials(user *authdomain.User, client emaildomain.MailClient) {
	creds := client.RefreshedCredentials()
	if creds == nil {
		return
	}
	user.GmailAccessToken = creds.AccessToken
	user.GmailTokenExpiry = creds.Expiry
	if creds.RefreshToken != "" {
		stored := creds.RefreshToken
		if u.cfg.EncryptionKey != "" {
			encrypted, err := crypto.Encrypt(creds.RefreshToken, u.cfg.EncryptionKey)
			if err != nil {
				log.Printf("[Sync] Encrypt refresh token for %s: %v", user.ID, err)
				return
			}
			stored = encrypted
		}
		user.GmailRefreshToken = stored
	}
	if err := u.userRepo.Update(user); err != nil {
		log.Printf("[Sync] Persist refreshed credentials for %s: %v", user.ID, err)
	}
}

func (u *syncUsecase) lockCycle(userID string) (func(), error) {
	u.mu.Lock()
	m, ok := u.cycles[userID]
	if !ok {
		m = &sync.Mutex{}
		u.cycles[userID] = m
	}
	u.mu.Unlock()

	if !m.TryLock() {
		return nil, emaildomain.ErrCycleInProgress
	}
	return m.Unlock, nil
}
