package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/email/repository"
	"mailpilot-backend/pkg/retry"
)

// maxPagesPerCycle bounds how many change pages a single cycle consumes.
// Remaining pages are picked up by the next cycle from the committed cursor.
const maxPagesPerCycle = 5

// LabelDelta is the net label change for one remote message, after merging
// every event seen for it during a pull. For each label only the latest event
// wins.
type LabelDelta struct {
	Added   []string
	Removed []string
}

// PullResult is what a single pull pass observed on the remote mailbox.
type PullResult struct {
	NewMessages      []*emaildomain.RemoteMessage
	DeletedRemoteIDs []string
	LabelDeltas      map[string]LabelDelta

	// NewCursor is the cursor to commit once the result has been applied.
	NewCursor string

	// NeedsBootstrap is set when the remote rejected the cursor as expired.
	// The caller must clear the stored cursor and end the cycle.
	NeedsBootstrap bool

	// Bootstrapped is set when the puller established a fresh cursor instead
	// of fetching changes.
	Bootstrapped bool
}

type changePuller struct {
	mailItemRepo repository.MailItemRepository
	retryPolicy  retry.Policy
	maxPages     int
}

func newChangePuller(mailItemRepo repository.MailItemRepository, policy retry.Policy) *changePuller {
	return &changePuller{
		mailItemRepo: mailItemRepo,
		retryPolicy:  policy,
		maxPages:     maxPagesPerCycle,
	}
}

// Pull fetches remote changes since the given cursor. An empty cursor means
// the mailbox has never been synced: the puller establishes a reference
// cursor and returns without change data, so the next cycle starts
// incremental sync from the current mailbox state.
func (p *changePuller) Pull(ctx context.Context, client emaildomain.MailClient, userID, cursor string) (*PullResult, error) {
	if cursor == "" {
		return p.bootstrap(ctx, client)
	}

	merge := newChangeMerge()
	newCursor := cursor
	lastEventCursor := ""
	pageToken := ""
	for page := 0; page < p.maxPages; page++ {
		var changes *emaildomain.ChangePage
		err := p.retryPolicy.Do(ctx, "list changes", func() error {
			var listErr error
			changes, listErr = client.ListChanges(ctx, cursor, pageToken)
			return listErr
		})
		if errors.Is(err, emaildomain.ErrCursorInvalid) {
			log.Printf("[Pull] Cursor invalid for user %s, bootstrap required", userID)
			return &PullResult{NeedsBootstrap: true}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list changes: %w", err)
		}

		for _, ev := range changes.Events {
			merge.observe(ev)
		}
		if changes.LastEventCursor != "" {
			lastEventCursor = changes.LastEventCursor
		}
		pageToken = changes.NextPageToken
		if pageToken == "" {
			if changes.NewCursor != "" {
				newCursor = changes.NewCursor
			}
			break
		}
	}
	if pageToken != "" {
		// Stopped at the page cap with pages still unread. The page-level
		// cursor describes the current mailbox state, so committing it would
		// skip the unread pages; advance only past the records consumed so
		// far and let the next cycle resume from there.
		if lastEventCursor != "" {
			newCursor = lastEventCursor
		}
		log.Printf("[Pull] Page cap reached for user %s, resuming from %s next cycle", userID, newCursor)
	}

	result := &PullResult{
		DeletedRemoteIDs: merge.deletedIDs(),
		LabelDeltas:      merge.labelDeltas(),
		NewCursor:        newCursor,
	}

	newIDs, err := p.filterKnown(userID, merge.addedIDs())
	if err != nil {
		return nil, err
	}
	for _, remoteID := range newIDs {
		msg, err := p.fetchMessage(ctx, client, remoteID)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			// Already gone on the remote, nothing to store.
			log.Printf("[Pull] Skipping vanished message %s", remoteID)
			continue
		}
		result.NewMessages = append(result.NewMessages, msg)
	}
	return result, nil
}

func (p *changePuller) bootstrap(ctx context.Context, client emaildomain.MailClient) (*PullResult, error) {
	var ref *emaildomain.ReferenceItem
	err := p.retryPolicy.Do(ctx, "get reference item", func() error {
		var refErr error
		ref, refErr = client.GetReferenceItem(ctx)
		return refErr
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap cursor: %w", err)
	}
	return &PullResult{NewCursor: ref.Cursor, Bootstrapped: true}, nil
}

// filterKnown drops remote IDs that already have a local mail item.
func (p *changePuller) filterKnown(userID string, remoteIDs []string) ([]string, error) {
	if len(remoteIDs) == 0 {
		return nil, nil
	}
	existing, err := p.mailItemRepo.ExistingRemoteIDs(userID, remoteIDs)
	if err != nil {
		return nil, fmt.Errorf("check existing remote ids: %w", err)
	}
	fresh := make([]string, 0, len(remoteIDs))
	for _, id := range remoteIDs {
		if !existing[id] {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

func (p *changePuller) fetchMessage(ctx context.Context, client emaildomain.MailClient, remoteID string) (*emaildomain.RemoteMessage, error) {
	var msg *emaildomain.RemoteMessage
	err := p.retryPolicy.Do(ctx, "get message", func() error {
		var getErr error
		msg, getErr = client.GetMessage(ctx, remoteID)
		return getErr
	})
	if errors.Is(err, emaildomain.ErrRemoteNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", remoteID, err)
	}
	return msg, nil
}

// changeMerge folds an ordered stream of change events into net effects per
// remote message.
type changeMerge struct {
	added      map[string]bool
	addedOrder []string

	deleted      map[string]bool
	deletedOrder []string

	// labels maps remoteID -> label -> whether the latest event for that
	// label was an add.
	labels      map[string]map[string]bool
	labelsOrder []string
}

func newChangeMerge() *changeMerge {
	return &changeMerge{
		added:   make(map[string]bool),
		deleted: make(map[string]bool),
		labels:  make(map[string]map[string]bool),
	}
}

func (m *changeMerge) observe(ev emaildomain.ChangeEvent) {
	switch ev.Kind {
	case emaildomain.ChangeAdded:
		if !m.added[ev.RemoteID] {
			m.added[ev.RemoteID] = true
			m.addedOrder = append(m.addedOrder, ev.RemoteID)
		}
		delete(m.deleted, ev.RemoteID)
	case emaildomain.ChangeDeleted:
		if !m.deleted[ev.RemoteID] {
			m.deleted[ev.RemoteID] = true
			m.deletedOrder = append(m.deletedOrder, ev.RemoteID)
		}
	case emaildomain.ChangeLabels:
		events, ok := m.labels[ev.RemoteID]
		if !ok {
			events = make(map[string]bool)
			m.labels[ev.RemoteID] = events
			m.labelsOrder = append(m.labelsOrder, ev.RemoteID)
		}
		for _, l := range ev.AddedLabels {
			events[l] = true
		}
		for _, l := range ev.RemovedLabels {
			events[l] = false
		}
	}
}

func (m *changeMerge) addedIDs() []string {
	out := make([]string, 0, len(m.addedOrder))
	for _, id := range m.addedOrder {
		if !m.deleted[id] {
			out = append(out, id)
		}
	}
	return out
}

func (m *changeMerge) deletedIDs() []string {
	return m.deletedOrder
}

// labelDeltas returns the merged label delta per remote message. Messages
// that were newly added or deleted in the same window are excluded: new
// messages are fetched with their final labels, deleted ones no longer
// matter.
func (m *changeMerge) labelDeltas() map[string]LabelDelta {
	deltas := make(map[string]LabelDelta, len(m.labelsOrder))
	for _, remoteID := range m.labelsOrder {
		if m.added[remoteID] || m.deleted[remoteID] {
			continue
		}
		addSet := make(map[string]bool)
		removeSet := make(map[string]bool)
		for label, isAdd := range m.labels[remoteID] {
			if isAdd {
				addSet[label] = true
			} else {
				removeSet[label] = true
			}
		}
		if len(addSet) == 0 && len(removeSet) == 0 {
			continue
		}
		deltas[remoteID] = LabelDelta{
			Added:   sortedLabels(addSet),
			Removed: sortedLabels(removeSet),
		}
	}
	return deltas
}
