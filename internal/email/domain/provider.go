package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared between the remote client and the sync engine.
var (
	// ErrCursorInvalid means the remote side rejected the change cursor as
	// unusable (too old, malformed). The caller must clear the checkpoint
	// and bootstrap a fresh cursor; this is not a generic failure.
	ErrCursorInvalid = errors.New("change cursor invalid or expired")

	// ErrRemoteNotFound means the remote id does not exist remotely.
	ErrRemoteNotFound = errors.New("remote message not found")

	// ErrCycleInProgress means a sync cycle is already running for the user.
	ErrCycleInProgress = errors.New("sync cycle already in progress")

	// ErrMailItemNotFound means the target MailItem does not exist locally.
	ErrMailItemNotFound = errors.New("mail item not found")
)

// Credentials is the OAuth credential pair for one user's mailbox.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// RemoteMessage is the full payload of one remote message, as returned by
// GetMessage when resolving newly-added ids.
type RemoteMessage struct {
	RemoteID   string
	ThreadID   string
	Subject    string
	From       string
	FromName   string
	Snippet    string
	Labels     []string
	IsRead     bool
	ReceivedAt time.Time
}

// ChangeKind discriminates change events within a page.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeDeleted ChangeKind = "deleted"
	ChangeLabels  ChangeKind = "labels"
)

// ChangeEvent is one remote mutation. Events within a ChangePage are ordered
// oldest first; the puller relies on that order to resolve add/remove
// collisions for the same label.
type ChangeEvent struct {
	Kind          ChangeKind
	RemoteID      string
	AddedLabels   []string
	RemovedLabels []string
}

// ChangePage is one page of change events starting at a cursor.
type ChangePage struct {
	Events        []ChangeEvent
	NextPageToken string
	// NewCursor is the cursor the checkpoint should advance to once the
	// whole window has been applied. It reflects the current mailbox state,
	// so it is only safe to commit after every page was consumed.
	NewCursor string
	// LastEventCursor is the cursor of the newest change record in this
	// page. When a puller stops mid-pagination this is the furthest point
	// it may advance to without skipping the unread pages.
	LastEventCursor string
}

// ReferenceItem carries a fresh cursor obtained in bootstrap mode without
// importing any mail.
type ReferenceItem struct {
	RemoteID string
	Cursor   string
}

// MailClient is the narrow remote surface one sync cycle needs. A client is
// scoped to one user's credentials; RefreshedCredentials surfaces any token
// refresh that happened during the cycle so the caller can persist it exactly
// once, instead of a hidden callback firing mid-call.
type MailClient interface {
	ListChanges(ctx context.Context, cursor, pageToken string) (*ChangePage, error)
	GetMessage(ctx context.Context, remoteID string) (*RemoteMessage, error)
	ModifyLabels(ctx context.Context, remoteID string, add, remove []string) error
	GetReferenceItem(ctx context.Context) (*ReferenceItem, error)
	Watch(ctx context.Context, topicName string) error
	StopWatch(ctx context.Context) error
	RefreshedCredentials() *Credentials
}

// MailProvider builds per-user clients against the remote mailbox service.
type MailProvider interface {
	ClientFor(ctx context.Context, creds Credentials) (MailClient, error)
}
