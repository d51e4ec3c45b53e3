package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	authdomain "mailpilot-backend/internal/auth/domain"
	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/pkg/ai"
)

// In-memory fakes for the repository and remote client interfaces. They keep
// the sync engine tests free of a database and network.

type fakeMailItemRepo struct {
	items  map[string]*emaildomain.MailItem // keyed by ID
	nextID int
	err    error
}

func newFakeMailItemRepo() *fakeMailItemRepo {
	return &fakeMailItemRepo{items: make(map[string]*emaildomain.MailItem)}
}

func (r *fakeMailItemRepo) GetByID(userID, id string) (*emaildomain.MailItem, error) {
	if r.err != nil {
		return nil, r.err
	}
	item, ok := r.items[id]
	if !ok || item.UserID != userID {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (r *fakeMailItemRepo) GetByRemoteID(userID, remoteID string) (*emaildomain.MailItem, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, item := range r.items {
		if item.UserID == userID && item.RemoteID == remoteID {
			copied := *item
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeMailItemRepo) ExistingRemoteIDs(userID string, remoteIDs []string) (map[string]bool, error) {
	if r.err != nil {
		return nil, r.err
	}
	existing := make(map[string]bool)
	for _, remoteID := range remoteIDs {
		item, _ := r.GetByRemoteID(userID, remoteID)
		if item != nil {
			existing[remoteID] = true
		}
	}
	return existing, nil
}

func (r *fakeMailItemRepo) List(userID string, limit, offset int) ([]*emaildomain.MailItem, int64, error) {
	var all []*emaildomain.MailItem
	for _, item := range r.items {
		if item.UserID == userID {
			copied := *item
			all = append(all, &copied)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ReceivedAt.After(all[j].ReceivedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *fakeMailItemRepo) Create(item *emaildomain.MailItem) error {
	if item.ID == "" {
		r.nextID++
		item.ID = fmt.Sprintf("item-%d", r.nextID)
	}
	copied := *item
	r.items[item.ID] = &copied
	return nil
}

func (r *fakeMailItemRepo) Update(item *emaildomain.MailItem) error {
	copied := *item
	r.items[item.ID] = &copied
	return nil
}

type fakeOperationRepo struct {
	ops    []*emaildomain.SyncOperation
	nextID int
}

func newFakeOperationRepo() *fakeOperationRepo {
	return &fakeOperationRepo{}
}

func (r *fakeOperationRepo) Create(op *emaildomain.SyncOperation) error {
	if op.ID == "" {
		r.nextID++
		op.ID = fmt.Sprintf("op-%d", r.nextID)
	}
	if op.Status == "" {
		op.Status = emaildomain.OpStatusPending
	}
	op.CreatedAt = time.Now()
	copied := *op
	r.ops = append(r.ops, &copied)
	return nil
}

func (r *fakeOperationRepo) GetByID(userID, id string) (*emaildomain.SyncOperation, error) {
	for _, op := range r.ops {
		if op.ID == id && op.UserID == userID {
			copied := *op
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeOperationRepo) ClaimPending(userID string, limit int) ([]*emaildomain.SyncOperation, error) {
	var claimed []*emaildomain.SyncOperation
	for _, op := range r.ops {
		if len(claimed) == limit {
			break
		}
		if op.UserID == userID && op.Status == emaildomain.OpStatusPending {
			op.Status = emaildomain.OpStatusProcessing
			copied := *op
			claimed = append(claimed, &copied)
		}
	}
	return claimed, nil
}

func (r *fakeOperationRepo) Complete(op *emaildomain.SyncOperation) error {
	return r.finish(op, emaildomain.OpStatusCompleted, "")
}

func (r *fakeOperationRepo) Fail(op *emaildomain.SyncOperation, errMsg string) error {
	return r.finish(op, emaildomain.OpStatusFailed, errMsg)
}

func (r *fakeOperationRepo) finish(op *emaildomain.SyncOperation, status, errMsg string) error {
	for _, stored := range r.ops {
		if stored.ID == op.ID && !stored.Terminal() {
			stored.Status = status
			stored.LastError = errMsg
			stored.Attempts++
			op.Status = status
			op.LastError = errMsg
			op.Attempts = stored.Attempts
		}
	}
	return nil
}

func (r *fakeOperationRepo) CountByStatus(userID string) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, op := range r.ops {
		if op.UserID == userID {
			counts[op.Status]++
		}
	}
	return counts, nil
}

func (r *fakeOperationRepo) byID(id string) *emaildomain.SyncOperation {
	for _, op := range r.ops {
		if op.ID == id {
			return op
		}
	}
	return nil
}

type fakeCheckpointRepo struct {
	checkpoints map[string]*emaildomain.SyncCheckpoint
	saveErr     error
}

func newFakeCheckpointRepo() *fakeCheckpointRepo {
	return &fakeCheckpointRepo{checkpoints: make(map[string]*emaildomain.SyncCheckpoint)}
}

func (r *fakeCheckpointRepo) GetByUserID(userID string) (*emaildomain.SyncCheckpoint, error) {
	cp, ok := r.checkpoints[userID]
	if !ok {
		return nil, nil
	}
	copied := *cp
	return &copied, nil
}

func (r *fakeCheckpointRepo) Save(cp *emaildomain.SyncCheckpoint) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	copied := *cp
	r.checkpoints[cp.UserID] = &copied
	return nil
}

func (r *fakeCheckpointRepo) ClearCursor(userID string) error {
	if cp, ok := r.checkpoints[userID]; ok {
		cp.Cursor = ""
	}
	return nil
}

type fakeCategoryRepo struct {
	categories []*emaildomain.Category
}

func newFakeCategoryRepo() *fakeCategoryRepo {
	return &fakeCategoryRepo{}
}

func (r *fakeCategoryRepo) GetByName(userID, name string) (*emaildomain.Category, error) {
	for _, c := range r.categories {
		if c.UserID == userID && c.Name == name {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeCategoryRepo) ListByUserID(userID string) ([]*emaildomain.Category, error) {
	var out []*emaildomain.Category
	for _, c := range r.categories {
		if c.UserID == userID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeCategoryRepo) Create(category *emaildomain.Category) error {
	copied := *category
	r.categories = append(r.categories, &copied)
	return nil
}

func (r *fakeCategoryRepo) Update(category *emaildomain.Category) error {
	for i, c := range r.categories {
		if c.UserID == category.UserID && c.Name == category.Name {
			copied := *category
			r.categories[i] = &copied
		}
	}
	return nil
}

func (r *fakeCategoryRepo) Delete(userID, name string) error {
	kept := r.categories[:0]
	for _, c := range r.categories {
		if !(c.UserID == userID && c.Name == name) {
			kept = append(kept, c)
		}
	}
	r.categories = kept
	return nil
}

type fakeUserRepo struct {
	users map[string]*authdomain.User
}

func newFakeUserRepo(users ...*authdomain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*authdomain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(user *authdomain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) FindByEmail(email string) (*authdomain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) FindByID(id string) (*authdomain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (r *fakeUserRepo) Update(user *authdomain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) ListSyncEnabled() ([]*authdomain.User, error) {
	var out []*authdomain.User
	for _, u := range r.users {
		if u.SyncEnabled {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) SaveRefreshToken(*authdomain.RefreshToken) error { return nil }
func (r *fakeUserRepo) FindRefreshToken(string) (*authdomain.RefreshToken, error) {
	return nil, nil
}
func (r *fakeUserRepo) DeleteRefreshToken(string) error                    { return nil }
func (r *fakeUserRepo) DeleteRefreshTokensByUser(string) error             { return nil }
func (r *fakeUserRepo) ReplaceRefreshToken(*authdomain.RefreshToken) error { return nil }

// modifyCall records one ModifyLabels invocation against the fake client.
type modifyCall struct {
	RemoteID string
	Add      []string
	Remove   []string
}

type fakeMailClient struct {
	pages     []*emaildomain.ChangePage
	pageIndex int
	listErr   error
	messages  map[string]*emaildomain.RemoteMessage
	reference *emaildomain.ReferenceItem
	modifyErr map[string]error
	modifies  []modifyCall
	watched   string
	stopped   bool
	refreshed *emaildomain.Credentials
}

func newFakeMailClient() *fakeMailClient {
	return &fakeMailClient{
		messages:  make(map[string]*emaildomain.RemoteMessage),
		modifyErr: make(map[string]error),
	}
}

func (c *fakeMailClient) ListChanges(_ context.Context, cursor, pageToken string) (*emaildomain.ChangePage, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	if c.pageIndex >= len(c.pages) {
		return &emaildomain.ChangePage{NewCursor: cursor}, nil
	}
	page := c.pages[c.pageIndex]
	c.pageIndex++
	return page, nil
}

func (c *fakeMailClient) GetMessage(_ context.Context, remoteID string) (*emaildomain.RemoteMessage, error) {
	msg, ok := c.messages[remoteID]
	if !ok {
		return nil, emaildomain.ErrRemoteNotFound
	}
	copied := *msg
	return &copied, nil
}

func (c *fakeMailClient) ModifyLabels(_ context.Context, remoteID string, add, remove []string) error {
	if err, ok := c.modifyErr[remoteID]; ok {
		return err
	}
	c.modifies = append(c.modifies, modifyCall{RemoteID: remoteID, Add: add, Remove: remove})
	return nil
}

func (c *fakeMailClient) GetReferenceItem(context.Context) (*emaildomain.ReferenceItem, error) {
	if c.reference == nil {
		return &emaildomain.ReferenceItem{Cursor: "ref-cursor"}, nil
	}
	return c.reference, nil
}

func (c *fakeMailClient) Watch(_ context.Context, topic string) error {
	c.watched = topic
	return nil
}

func (c *fakeMailClient) StopWatch(context.Context) error {
	c.stopped = true
	return nil
}

func (c *fakeMailClient) RefreshedCredentials() *emaildomain.Credentials {
	return c.refreshed
}

type fakeProvider struct {
	client *fakeMailClient
	creds  []emaildomain.Credentials
}

func (p *fakeProvider) ClientFor(_ context.Context, creds emaildomain.Credentials) (emaildomain.MailClient, error) {
	p.creds = append(p.creds, creds)
	return p.client, nil
}

type fakeCategorizer struct {
	category string
	calls    int
}

func (c *fakeCategorizer) Categorize(_ context.Context, _ ai.MessageSnapshot, categories []string) (string, error) {
	c.calls++
	if c.category != "" {
		return c.category, nil
	}
	if len(categories) == 0 {
		return "", nil
	}
	return categories[0], nil
}
