package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	authdomain "mailpilot-backend/internal/auth/domain"
	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/pkg/config"
	"mailpilot-backend/pkg/retry"
)

type syncFixture struct {
	items       *fakeMailItemRepo
	ops         *fakeOperationRepo
	checkpoints *fakeCheckpointRepo
	categories  *fakeCategoryRepo
	users       *fakeUserRepo
	client      *fakeMailClient
	provider    *fakeProvider
	categorizer *fakeCategorizer
	settled     int
	uc          SyncUsecase
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	f := &syncFixture{
		items:       newFakeMailItemRepo(),
		ops:         newFakeOperationRepo(),
		checkpoints: newFakeCheckpointRepo(),
		categories:  newFakeCategoryRepo(),
		client:      newFakeMailClient(),
		categorizer: &fakeCategorizer{},
	}
	f.users = newFakeUserRepo(&authdomain.User{
		ID:                "u1",
		Email:             "u1@example.com",
		GmailAccessToken:  "access",
		GmailRefreshToken: "refresh",
	})
	f.provider = &fakeProvider{client: f.client}

	cfg := &config.Config{PubsubTopic: "projects/p/topics/mail"}
	f.uc = NewSyncUsecase(f.items, f.ops, f.checkpoints, f.categories, f.users, f.provider, f.categorizer, cfg)

	impl := f.uc.(*syncUsecase)
	impl.settle = func(context.Context, time.Duration) { f.settled++ }
	policy := retry.NewPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	policy.Jitter = nil
	impl.puller = newChangePuller(f.items, policy)
	impl.pusher = newPushExecutor(f.items, f.ops, f.categories, policy)
	return f
}

func (f *syncFixture) seedCheckpoint(cursor string) {
	f.checkpoints.Save(&emaildomain.SyncCheckpoint{UserID: "u1", Cursor: cursor})
}

func TestRunSyncCycleFullPass(t *testing.T) {
	f := newSyncFixture(t)
	f.seedCheckpoint("1000")

	trashed := &emaildomain.MailItem{
		UserID: "u1", RemoteID: "gone",
		Labels: emaildomain.StringArray{"INBOX"}, Category: emaildomain.CategoryInbox,
	}
	f.items.Create(trashed)
	relabeled := &emaildomain.MailItem{
		UserID: "u1", RemoteID: "starred",
		Labels: emaildomain.StringArray{"INBOX"}, Category: emaildomain.CategoryInbox,
	}
	f.items.Create(relabeled)
	queued := &emaildomain.MailItem{
		UserID: "u1", RemoteID: "queued",
		Labels: emaildomain.StringArray{"INBOX"}, Category: emaildomain.CategoryInbox,
	}
	f.items.Create(queued)
	f.ops.Create(&emaildomain.SyncOperation{UserID: "u1", MailItemID: queued.ID, Kind: emaildomain.OpKindMarkRead})

	f.client.pages = []*emaildomain.ChangePage{{
		Events: []emaildomain.ChangeEvent{
			{Kind: emaildomain.ChangeAdded, RemoteID: "new1"},
			{Kind: emaildomain.ChangeDeleted, RemoteID: "gone"},
			{Kind: emaildomain.ChangeLabels, RemoteID: "starred", AddedLabels: []string{"STARRED"}},
		},
		NewCursor: "1100",
	}}
	f.client.messages["new1"] = &emaildomain.RemoteMessage{
		RemoteID: "new1", Subject: "welcome",
		Labels: []string{"INBOX", "UNREAD"}, ReceivedAt: time.Now(),
	}

	res, err := f.uc.RunSyncCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	if res.Status != SyncStatusCompleted {
		t.Errorf("Status = %q, want completed", res.Status)
	}
	if res.OperationsPushed != 1 || res.OperationsFailed != 0 {
		t.Errorf("operations pushed/failed = %d/%d, want 1/0", res.OperationsPushed, res.OperationsFailed)
	}
	if f.settled != 1 {
		t.Errorf("settled %d times, want 1 after pushing", f.settled)
	}
	if res.NewItems != 1 || res.DeletedCount != 1 || res.LabelChanges != 1 {
		t.Errorf("counts = %+v", res)
	}
	if res.NewCursor != "1100" {
		t.Errorf("NewCursor = %q, want 1100", res.NewCursor)
	}

	cp, _ := f.checkpoints.GetByUserID("u1")
	if cp.Cursor != "1100" {
		t.Errorf("checkpoint cursor = %q, want 1100", cp.Cursor)
	}

	stored, _ := f.items.GetByRemoteID("u1", "gone")
	if stored.Category != emaildomain.CategoryTrashed || !stored.Labels.Contains("TRASH") {
		t.Errorf("deleted item not trashed locally: %+v", stored)
	}
	stored, _ = f.items.GetByRemoteID("u1", "starred")
	if !stored.Labels.Contains("STARRED") {
		t.Errorf("label delta not applied: %v", stored.Labels)
	}
	stored, _ = f.items.GetByRemoteID("u1", "new1")
	if stored == nil {
		t.Fatal("new message not stored")
	}
	if stored.Category != emaildomain.CategoryInbox {
		t.Errorf("new item category = %q, want inbox", stored.Category)
	}
	if stored.IsRead {
		t.Error("new unread item marked read")
	}
}

func TestRunSyncCycleBootstrap(t *testing.T) {
	f := newSyncFixture(t)
	f.client.reference = &emaildomain.ReferenceItem{RemoteID: "m1", Cursor: "5000"}

	res, err := f.uc.RunSyncCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	if res.Status != SyncStatusBootstrapped {
		t.Errorf("Status = %q, want bootstrapped", res.Status)
	}
	cp, _ := f.checkpoints.GetByUserID("u1")
	if cp == nil || cp.Cursor != "5000" {
		t.Errorf("checkpoint = %+v, want cursor 5000", cp)
	}
	if f.settled != 0 {
		t.Error("settled with nothing pushed")
	}
}

func TestRunSyncCycleCursorReset(t *testing.T) {
	f := newSyncFixture(t)
	f.seedCheckpoint("1000")
	f.client.listErr = emaildomain.ErrCursorInvalid

	res, err := f.uc.RunSyncCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	if res.Status != SyncStatusCursorReset {
		t.Errorf("Status = %q, want cursor_reset", res.Status)
	}
	cp, _ := f.checkpoints.GetByUserID("u1")
	if cp.Cursor != "" {
		t.Errorf("cursor = %q, want cleared", cp.Cursor)
	}

	// Next cycle bootstraps from scratch.
	f.client.listErr = nil
	f.client.reference = &emaildomain.ReferenceItem{Cursor: "6000"}
	res, err = f.uc.RunSyncCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second RunSyncCycle: %v", err)
	}
	if res.Status != SyncStatusBootstrapped {
		t.Errorf("second Status = %q, want bootstrapped", res.Status)
	}
}

func TestRunSyncCycleKeepsCheckpointOnFailure(t *testing.T) {
	f := newSyncFixture(t)
	f.seedCheckpoint("1000")
	f.client.pages = []*emaildomain.ChangePage{{
		Events:    []emaildomain.ChangeEvent{{Kind: emaildomain.ChangeDeleted, RemoteID: "gone"}},
		NewCursor: "1100",
	}}
	f.checkpoints.saveErr = errors.New("disk full")

	if _, err := f.uc.RunSyncCycle(context.Background(), "u1"); err == nil {
		t.Fatal("RunSyncCycle succeeded, want commit error")
	}
	cp, _ := f.checkpoints.GetByUserID("u1")
	if cp.Cursor != "1000" {
		t.Errorf("cursor = %q, want unchanged 1000", cp.Cursor)
	}
}

func TestRunSyncCycleReapplyIsIdempotent(t *testing.T) {
	f := newSyncFixture(t)
	f.seedCheckpoint("1000")
	item := &emaildomain.MailItem{
		UserID: "u1", RemoteID: "gone",
		Labels: emaildomain.StringArray{"INBOX"}, Category: emaildomain.CategoryInbox,
	}
	f.items.Create(item)

	window := func() *emaildomain.ChangePage {
		return &emaildomain.ChangePage{
			Events:    []emaildomain.ChangeEvent{{Kind: emaildomain.ChangeDeleted, RemoteID: "gone"}},
			NewCursor: "1100",
		}
	}
	f.client.pages = []*emaildomain.ChangePage{window()}

	res, err := f.uc.RunSyncCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if res.DeletedCount != 1 {
		t.Fatalf("first DeletedCount = %d, want 1", res.DeletedCount)
	}

	// The same window replayed, as after a crash before commit.
	f.client.pages = []*emaildomain.ChangePage{window()}
	f.client.pageIndex = 0
	res, err = f.uc.RunSyncCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if res.DeletedCount != 0 {
		t.Errorf("second DeletedCount = %d, want 0 for an already applied window", res.DeletedCount)
	}
}

func TestRunSyncCycleRejectsConcurrentCycle(t *testing.T) {
	f := newSyncFixture(t)
	f.seedCheckpoint("1000")

	impl := f.uc.(*syncUsecase)
	started := make(chan struct{})
	release := make(chan struct{})
	impl.settle = func(context.Context, time.Duration) {
		close(started)
		<-release
	}

	item := &emaildomain.MailItem{UserID: "u1", RemoteID: "r1", Labels: emaildomain.StringArray{"INBOX"}}
	f.items.Create(item)
	f.ops.Create(&emaildomain.SyncOperation{UserID: "u1", MailItemID: item.ID, Kind: emaildomain.OpKindMarkRead})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.uc.RunSyncCycle(context.Background(), "u1")
	}()

	<-started
	_, err := f.uc.RunSyncCycle(context.Background(), "u1")
	if !errors.Is(err, emaildomain.ErrCycleInProgress) {
		t.Errorf("concurrent cycle error = %v, want ErrCycleInProgress", err)
	}
	close(release)
	wg.Wait()
}

func TestRunSyncCyclePersistsRefreshedCredentials(t *testing.T) {
	f := newSyncFixture(t)
	f.seedCheckpoint("1000")
	f.client.refreshed = &emaildomain.Credentials{
		AccessToken: "new-access",
		Expiry:      time.Now().Add(time.Hour),
	}

	if _, err := f.uc.RunSyncCycle(context.Background(), "u1"); err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	user, _ := f.users.FindByID("u1")
	if user.GmailAccessToken != "new-access" {
		t.Errorf("access token = %q, want the refreshed one", user.GmailAccessToken)
	}
}

func TestEnqueueOperationAppliesLocalEffect(t *testing.T) {
	f := newSyncFixture(t)
	item := &emaildomain.MailItem{
		UserID: "u1", RemoteID: "r1",
		Labels: emaildomain.StringArray{"INBOX", "UNREAD"}, Category: emaildomain.CategoryInbox,
	}
	f.items.Create(item)

	opID, err := f.uc.EnqueueOperation(context.Background(), "u1", item.ID, emaildomain.OpKindTrash, OperationPayload{})
	if err != nil {
		t.Fatalf("EnqueueOperation: %v", err)
	}
	if opID == "" {
		t.Fatal("empty operation id")
	}

	stored, _ := f.items.GetByID("u1", item.ID)
	if stored.Category != emaildomain.CategoryTrashed || !stored.Labels.Contains("TRASH") || stored.Labels.Contains("INBOX") {
		t.Errorf("local effect not applied: %+v", stored)
	}
	op, _ := f.uc.GetOperation("u1", opID)
	if op == nil || op.Status != emaildomain.OpStatusPending {
		t.Errorf("queued op = %+v, want pending", op)
	}
}

func TestEnqueueOperationNoOpCategoryChange(t *testing.T) {
	f := newSyncFixture(t)
	item := &emaildomain.MailItem{
		UserID: "u1", RemoteID: "r1",
		Labels: emaildomain.StringArray{"INBOX"}, Category: emaildomain.CategoryInbox,
	}
	f.items.Create(item)

	opID, err := f.uc.EnqueueOperation(context.Background(), "u1", item.ID, emaildomain.OpKindUpdateCategory,
		OperationPayload{Category: emaildomain.CategoryInbox})
	if err != nil {
		t.Fatalf("EnqueueOperation: %v", err)
	}
	if opID != "" {
		t.Errorf("op id = %q, want empty for a no-op", opID)
	}
	counts, _ := f.ops.CountByStatus("u1")
	if len(counts) != 0 {
		t.Errorf("operations queued for a no-op: %v", counts)
	}
}

func TestEnqueueOperationNoOpTrash(t *testing.T) {
	f := newSyncFixture(t)
	item := &emaildomain.MailItem{
		UserID: "u1", RemoteID: "r1",
		Labels: emaildomain.StringArray{"TRASH"}, Category: emaildomain.CategoryTrashed,
	}
	f.items.Create(item)

	opID, err := f.uc.EnqueueOperation(context.Background(), "u1", item.ID, emaildomain.OpKindTrash, OperationPayload{})
	if err != nil {
		t.Fatalf("EnqueueOperation: %v", err)
	}
	if opID != "" {
		t.Errorf("op id = %q, want empty when the item is already trashed", opID)
	}
	counts, _ := f.ops.CountByStatus("u1")
	if len(counts) != 0 {
		t.Errorf("operations queued for a no-op: %v", counts)
	}
}

func TestEnqueueOperationNoOpMarkRead(t *testing.T) {
	f := newSyncFixture(t)
	item := &emaildomain.MailItem{
		UserID: "u1", RemoteID: "r1",
		Labels: emaildomain.StringArray{"INBOX"}, Category: emaildomain.CategoryInbox, IsRead: true,
	}
	f.items.Create(item)

	opID, err := f.uc.EnqueueOperation(context.Background(), "u1", item.ID, emaildomain.OpKindMarkRead, OperationPayload{})
	if err != nil {
		t.Fatalf("EnqueueOperation: %v", err)
	}
	if opID != "" {
		t.Errorf("op id = %q, want empty for an already read item", opID)
	}
}

func TestEnqueueOperationUnknownItem(t *testing.T) {
	f := newSyncFixture(t)
	_, err := f.uc.EnqueueOperation(context.Background(), "u1", "missing", emaildomain.OpKindTrash, OperationPayload{})
	if !errors.Is(err, emaildomain.ErrMailItemNotFound) {
		t.Errorf("err = %v, want ErrMailItemNotFound", err)
	}
}

func TestRunSyncCycleRecategorizesOnRestore(t *testing.T) {
	f := newSyncFixture(t)
	f.seedCheckpoint("1000")
	f.categorizer.category = "receipts"
	f.categories.Create(&emaildomain.Category{UserID: "u1", Name: "receipts"})

	item := &emaildomain.MailItem{
		UserID: "u1", RemoteID: "r1",
		Labels: emaildomain.StringArray{"TRASH"}, Category: emaildomain.CategoryTrashed,
	}
	f.items.Create(item)

	f.client.pages = []*emaildomain.ChangePage{{
		Events: []emaildomain.ChangeEvent{{
			Kind: emaildomain.ChangeLabels, RemoteID: "r1",
			AddedLabels: []string{"INBOX"}, RemovedLabels: []string{"TRASH"},
		}},
		NewCursor: "1100",
	}}

	if _, err := f.uc.RunSyncCycle(context.Background(), "u1"); err != nil {
		t.Fatalf("RunSyncCycle: %v", err)
	}
	stored, _ := f.items.GetByRemoteID("u1", "r1")
	if stored.Category != "receipts" {
		t.Errorf("category = %q, want recategorized to receipts", stored.Category)
	}
	if f.categorizer.calls == 0 {
		t.Error("categorizer never consulted")
	}
}

func TestWatchMailbox(t *testing.T) {
	f := newSyncFixture(t)
	if err := f.uc.WatchMailbox(context.Background(), "u1"); err != nil {
		t.Fatalf("WatchMailbox: %v", err)
	}
	if f.client.watched != "projects/p/topics/mail" {
		t.Errorf("watched topic = %q", f.client.watched)
	}
	if err := f.uc.StopWatchMailbox(context.Background(), "u1"); err != nil {
		t.Fatalf("StopWatchMailbox: %v", err)
	}
	if !f.client.stopped {
		t.Error("StopWatch not called")
	}
}
