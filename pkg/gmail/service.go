package gmail

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/pkg/retry"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	gmailUser       = "me"
	historyPageSize = 100
	clientCacheTTL  = 5 * time.Minute
)

// Service builds per-user Gmail clients. Constructed services are cached by
// credential fingerprint behind a lock so repeated cycles for the same user
// do not re-authenticate on every call.
type Service struct {
	clientID     string
	clientSecret string
	cache        *clientCache
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		cache:        newClientCache(clientCacheTTL),
	}
}

// recordingTokenSource remembers the latest token handed out by the wrapped
// source. The refresh is surfaced through Client.RefreshedCredentials rather
// than a callback, so persistence happens once, in one place.
type recordingTokenSource struct {
	src oauth2.TokenSource

	mu      sync.Mutex
	initial string // access token the client was built with
	latest  *oauth2.Token
}

func (s *recordingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.latest = t
	s.mu.Unlock()
	return t, nil
}

func (s *recordingTokenSource) refreshed() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil || s.latest.AccessToken == s.initial {
		return nil
	}
	return s.latest
}

type cachedClient struct {
	svc       *gmail.Service
	source    *recordingTokenSource
	expiresAt time.Time
}

// clientCache is an explicit, lock-guarded cache owned by the Service, not
// package-level state.
type clientCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedClient
}

func newClientCache(ttl time.Duration) *clientCache {
	return &clientCache{
		ttl:     ttl,
		entries: make(map[string]cachedClient),
	}
}

func (c *clientCache) get(key string) (cachedClient, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return cachedClient{}, false
	}
	return entry, true
}

func (c *clientCache) put(key string, entry cachedClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Opportunistic cleanup of expired entries.
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	entry.expiresAt = now.Add(c.ttl)
	c.entries[key] = entry
}

func credentialFingerprint(creds emaildomain.Credentials) string {
	sum := sha256.Sum256([]byte(creds.AccessToken + "\x00" + creds.RefreshToken))
	return hex.EncodeToString(sum[:])
}

// ClientFor returns a Gmail client scoped to the given credentials.
func (s *Service) ClientFor(ctx context.Context, creds emaildomain.Credentials) (emaildomain.MailClient, error) {
	key := credentialFingerprint(creds)
	if entry, ok := s.cache.get(key); ok {
		return &Client{svc: entry.svc, source: entry.source, creds: creds}, nil
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.Expiry,
	}

	// Force a refresh on first use when we can; a stale access token would
	// otherwise burn a request per call just to learn it expired.
	if creds.RefreshToken != "" && creds.Expiry.IsZero() {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	source := &recordingTokenSource{
		src:     config.TokenSource(ctx, token),
		initial: creds.AccessToken,
	}

	httpClient := oauth2.NewClient(ctx, source)
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	s.cache.put(key, cachedClient{svc: svc, source: source})
	return &Client{svc: svc, source: source, creds: creds}, nil
}

// Client implements domain.MailClient against the Gmail API.
type Client struct {
	svc    *gmail.Service
	source *recordingTokenSource
	creds  emaildomain.Credentials
}

// RefreshedCredentials returns the refreshed credential pair if the access
// token changed since the client was built, nil otherwise.
func (c *Client) RefreshedCredentials() *emaildomain.Credentials {
	t := c.source.refreshed()
	if t == nil {
		return nil
	}
	refreshed := emaildomain.Credentials{
		AccessToken:  t.AccessToken,
		RefreshToken: c.creds.RefreshToken,
		Expiry:       t.Expiry,
	}
	if t.RefreshToken != "" {
		refreshed.RefreshToken = t.RefreshToken
	}
	return &refreshed
}

// ListChanges fetches one page of history events starting at cursor.
// A 404 from the history endpoint means the cursor is too old to resume
// from; that is reported as ErrCursorInvalid, not as a generic failure.
func (c *Client) ListChanges(ctx context.Context, cursor, pageToken string) (*emaildomain.ChangePage, error) {
	startID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable cursor %q", emaildomain.ErrCursorInvalid, cursor)
	}

	call := c.svc.Users.History.List(gmailUser).
		StartHistoryId(startID).
		MaxResults(historyPageSize).
		HistoryTypes("messageAdded", "messageDeleted", "labelAdded", "labelRemoved")
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		if retry.IsNotFound(err) {
			return nil, fmt.Errorf("%w: history id %s rejected", emaildomain.ErrCursorInvalid, cursor)
		}
		return nil, fmt.Errorf("unable to list history: %w", err)
	}

	page := &emaildomain.ChangePage{
		NextPageToken: resp.NextPageToken,
		NewCursor:     strconv.FormatUint(resp.HistoryId, 10),
	}

	// History records arrive oldest first; event order within the page is
	// what lets the puller resolve add/remove collisions per label.
	for _, h := range resp.History {
		page.LastEventCursor = strconv.FormatUint(h.Id, 10)
		for _, added := range h.MessagesAdded {
			if added.Message == nil {
				continue
			}
			page.Events = append(page.Events, emaildomain.ChangeEvent{
				Kind:     emaildomain.ChangeAdded,
				RemoteID: added.Message.Id,
			})
		}
		for _, deleted := range h.MessagesDeleted {
			if deleted.Message == nil {
				continue
			}
			page.Events = append(page.Events, emaildomain.ChangeEvent{
				Kind:     emaildomain.ChangeDeleted,
				RemoteID: deleted.Message.Id,
			})
		}
		for _, la := range h.LabelsAdded {
			if la.Message == nil {
				continue
			}
			page.Events = append(page.Events, emaildomain.ChangeEvent{
				Kind:        emaildomain.ChangeLabels,
				RemoteID:    la.Message.Id,
				AddedLabels: la.LabelIds,
			})
		}
		for _, lr := range h.LabelsRemoved {
			if lr.Message == nil {
				continue
			}
			page.Events = append(page.Events, emaildomain.ChangeEvent{
				Kind:          emaildomain.ChangeLabels,
				RemoteID:      lr.Message.Id,
				RemovedLabels: lr.LabelIds,
			})
		}
	}

	return page, nil
}

// GetMessage retrieves one message's metadata.
func (c *Client) GetMessage(ctx context.Context, remoteID string) (*emaildomain.RemoteMessage, error) {
	msg, err := c.svc.Users.Messages.Get(gmailUser, remoteID).
		Format("metadata").
		MetadataHeaders("Subject", "From").
		Context(ctx).Do()
	if err != nil {
		if retry.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", emaildomain.ErrRemoteNotFound, remoteID)
		}
		return nil, fmt.Errorf("unable to retrieve message %s: %w", remoteID, err)
	}
	return convertMessage(msg), nil
}

// ModifyLabels adds and/or removes labels on a message.
func (c *Client) ModifyLabels(ctx context.Context, remoteID string, add, remove []string) error {
	req := &gmail.ModifyMessageRequest{}
	if len(add) > 0 {
		req.AddLabelIds = add
	}
	if len(remove) > 0 {
		req.RemoveLabelIds = remove
	}
	if len(req.AddLabelIds) == 0 && len(req.RemoveLabelIds) == 0 {
		return nil
	}

	_, err := c.svc.Users.Messages.Modify(gmailUser, remoteID, req).Context(ctx).Do()
	if err != nil {
		if retry.IsNotFound(err) {
			return fmt.Errorf("%w: %s", emaildomain.ErrRemoteNotFound, remoteID)
		}
		return fmt.Errorf("unable to modify labels on %s: %w", remoteID, err)
	}
	return nil
}

// GetReferenceItem fetches the most recent inbox message solely to obtain a
// fresh history cursor, without importing any mail. An empty mailbox falls
// back to the profile's history id.
func (c *Client) GetReferenceItem(ctx context.Context) (*emaildomain.ReferenceItem, error) {
	listResp, err := c.svc.Users.Messages.List(gmailUser).
		LabelIds(emaildomain.LabelInbox).
		MaxResults(1).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list reference message: %w", err)
	}

	if len(listResp.Messages) == 0 {
		profile, err := c.svc.Users.GetProfile(gmailUser).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("unable to get profile for reference cursor: %w", err)
		}
		return &emaildomain.ReferenceItem{
			Cursor: strconv.FormatUint(profile.HistoryId, 10),
		}, nil
	}

	// The list entry carries no history id; fetch the message minimally.
	msg, err := c.svc.Users.Messages.Get(gmailUser, listResp.Messages[0].Id).
		Format("minimal").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve reference message: %w", err)
	}

	return &emaildomain.ReferenceItem{
		RemoteID: msg.Id,
		Cursor:   strconv.FormatUint(msg.HistoryId, 10),
	}, nil
}

// Watch sets up push notifications for the user's inbox on a Pub/Sub topic.
func (c *Client) Watch(ctx context.Context, topicName string) error {
	// Stop any existing watch first to avoid the "only one push notification
	// client allowed" error. The call may fail if no watch exists.
	_ = c.svc.Users.Stop(gmailUser).Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{emaildomain.LabelInbox},
	}
	resp, err := c.svc.Users.Watch(gmailUser, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to watch mailbox: %w", err)
	}
	log.Printf("[Gmail] Watch started, expiration=%d historyId=%d", resp.Expiration, resp.HistoryId)
	return nil
}

// StopWatch stops push notifications for the user's mailbox.
func (c *Client) StopWatch(ctx context.Context) error {
	if err := c.svc.Users.Stop(gmailUser).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}

func convertMessage(msg *gmail.Message) *emaildomain.RemoteMessage {
	from := getHeader(msg, "From")
	fromName := from
	if idx := strings.Index(from, "<"); idx > 0 {
		fromName = strings.TrimSpace(from[:idx])
	}

	return &emaildomain.RemoteMessage{
		RemoteID:   msg.Id,
		ThreadID:   msg.ThreadId,
		Subject:    getHeader(msg, "Subject"),
		From:       from,
		FromName:   fromName,
		Snippet:    msg.Snippet,
		Labels:     msg.LabelIds,
		IsRead:     !hasLabel(msg.LabelIds, emaildomain.LabelUnread),
		ReceivedAt: time.Unix(msg.InternalDate/1000, 0),
	}
}

func getHeader(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, header := range msg.Payload.Headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
