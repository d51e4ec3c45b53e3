package usecase

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/pkg/retry"
)

func quietPolicy() retry.Policy {
	p := retry.NewPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	p.Jitter = nil
	return p
}

func TestPullBootstrapsOnEmptyCursor(t *testing.T) {
	client := newFakeMailClient()
	client.reference = &emaildomain.ReferenceItem{RemoteID: "m1", Cursor: "1000"}
	puller := newChangePuller(newFakeMailItemRepo(), quietPolicy())

	res, err := puller.Pull(context.Background(), client, "u1", "")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if !res.Bootstrapped {
		t.Error("Bootstrapped = false, want true")
	}
	if res.NewCursor != "1000" {
		t.Errorf("NewCursor = %q, want 1000", res.NewCursor)
	}
	if len(res.NewMessages) != 0 || len(res.DeletedRemoteIDs) != 0 {
		t.Error("bootstrap must not report changes")
	}
}

func TestPullReportsCursorInvalid(t *testing.T) {
	client := newFakeMailClient()
	client.listErr = emaildomain.ErrCursorInvalid
	puller := newChangePuller(newFakeMailItemRepo(), quietPolicy())

	res, err := puller.Pull(context.Background(), client, "u1", "999")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if !res.NeedsBootstrap {
		t.Error("NeedsBootstrap = false, want true")
	}
}

func TestPullMergesLabelEventsLatestWins(t *testing.T) {
	client := newFakeMailClient()
	client.pages = []*emaildomain.ChangePage{{
		Events: []emaildomain.ChangeEvent{
			{Kind: emaildomain.ChangeLabels, RemoteID: "m1", AddedLabels: []string{"STARRED"}},
			{Kind: emaildomain.ChangeLabels, RemoteID: "m1", RemovedLabels: []string{"STARRED"}},
			{Kind: emaildomain.ChangeLabels, RemoteID: "m1", RemovedLabels: []string{"UNREAD"}},
			{Kind: emaildomain.ChangeLabels, RemoteID: "m1", AddedLabels: []string{"UNREAD"}},
		},
		NewCursor: "1010",
	}}
	puller := newChangePuller(newFakeMailItemRepo(), quietPolicy())

	res, err := puller.Pull(context.Background(), client, "u1", "1000")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	delta, ok := res.LabelDeltas["m1"]
	if !ok {
		t.Fatal("no delta for m1")
	}
	if !reflect.DeepEqual(delta.Added, []string{"UNREAD"}) {
		t.Errorf("Added = %v, want [UNREAD]", delta.Added)
	}
	if !reflect.DeepEqual(delta.Removed, []string{"STARRED"}) {
		t.Errorf("Removed = %v, want [STARRED]", delta.Removed)
	}
	if res.NewCursor != "1010" {
		t.Errorf("NewCursor = %q, want 1010", res.NewCursor)
	}
}

func TestPullSkipsKnownAndVanishedMessages(t *testing.T) {
	repo := newFakeMailItemRepo()
	repo.Create(&emaildomain.MailItem{UserID: "u1", RemoteID: "known"})

	client := newFakeMailClient()
	client.pages = []*emaildomain.ChangePage{{
		Events: []emaildomain.ChangeEvent{
			{Kind: emaildomain.ChangeAdded, RemoteID: "known"},
			{Kind: emaildomain.ChangeAdded, RemoteID: "fresh"},
			{Kind: emaildomain.ChangeAdded, RemoteID: "vanished"},
		},
		NewCursor: "1020",
	}}
	client.messages["fresh"] = &emaildomain.RemoteMessage{RemoteID: "fresh", Subject: "hello"}
	// "vanished" has no message behind it, GetMessage returns not-found.

	puller := newChangePuller(repo, quietPolicy())
	res, err := puller.Pull(context.Background(), client, "u1", "1000")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(res.NewMessages) != 1 || res.NewMessages[0].RemoteID != "fresh" {
		t.Errorf("NewMessages = %v, want just fresh", res.NewMessages)
	}
}

func TestPullAddThenDeleteInSameWindow(t *testing.T) {
	client := newFakeMailClient()
	client.pages = []*emaildomain.ChangePage{{
		Events: []emaildomain.ChangeEvent{
			{Kind: emaildomain.ChangeAdded, RemoteID: "m1"},
			{Kind: emaildomain.ChangeLabels, RemoteID: "m1", AddedLabels: []string{"STARRED"}},
			{Kind: emaildomain.ChangeDeleted, RemoteID: "m1"},
		},
		NewCursor: "1030",
	}}
	puller := newChangePuller(newFakeMailItemRepo(), quietPolicy())

	res, err := puller.Pull(context.Background(), client, "u1", "1000")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(res.NewMessages) != 0 {
		t.Errorf("NewMessages = %v, want none for an id deleted in the same window", res.NewMessages)
	}
	if !reflect.DeepEqual(res.DeletedRemoteIDs, []string{"m1"}) {
		t.Errorf("DeletedRemoteIDs = %v, want [m1]", res.DeletedRemoteIDs)
	}
	if len(res.LabelDeltas) != 0 {
		t.Errorf("LabelDeltas = %v, want none", res.LabelDeltas)
	}
}

func TestPullFollowsPagesAndKeepsLastCursor(t *testing.T) {
	client := newFakeMailClient()
	client.pages = []*emaildomain.ChangePage{
		{
			Events:        []emaildomain.ChangeEvent{{Kind: emaildomain.ChangeDeleted, RemoteID: "m1"}},
			NextPageToken: "page2",
			NewCursor:     "1040",
		},
		{
			Events:    []emaildomain.ChangeEvent{{Kind: emaildomain.ChangeDeleted, RemoteID: "m2"}},
			NewCursor: "1050",
		},
	}
	puller := newChangePuller(newFakeMailItemRepo(), quietPolicy())

	res, err := puller.Pull(context.Background(), client, "u1", "1000")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if !reflect.DeepEqual(res.DeletedRemoteIDs, []string{"m1", "m2"}) {
		t.Errorf("DeletedRemoteIDs = %v, want both pages merged", res.DeletedRemoteIDs)
	}
	if res.NewCursor != "1050" {
		t.Errorf("NewCursor = %q, want the last page's cursor", res.NewCursor)
	}
}

func TestPullStopsAtPageCap(t *testing.T) {
	client := newFakeMailClient()
	for i := 0; i < maxPagesPerCycle+3; i++ {
		client.pages = append(client.pages, &emaildomain.ChangePage{
			NextPageToken:   "more",
			NewCursor:       "2000",
			LastEventCursor: fmt.Sprintf("10%02d", i+1),
		})
	}
	puller := newChangePuller(newFakeMailItemRepo(), quietPolicy())

	res, err := puller.Pull(context.Background(), client, "u1", "1000")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if client.pageIndex != maxPagesPerCycle {
		t.Errorf("consumed %d pages, want %d", client.pageIndex, maxPagesPerCycle)
	}
	if res.NewCursor != "1005" {
		t.Errorf("NewCursor = %q, want the last consumed record 1005, not the mailbox head", res.NewCursor)
	}
}

func TestPullPageCapKeepsUnreadPagesReachable(t *testing.T) {
	// Every page reports the same mailbox-head cursor while a deletion sits
	// on a page past the cap. Committing the head would skip it forever.
	client := newFakeMailClient()
	for i := 0; i < maxPagesPerCycle; i++ {
		client.pages = append(client.pages, &emaildomain.ChangePage{
			NextPageToken:   "more",
			NewCursor:       "2000",
			LastEventCursor: fmt.Sprintf("10%02d", i+1),
		})
	}
	client.pages = append(client.pages, &emaildomain.ChangePage{
		Events:          []emaildomain.ChangeEvent{{Kind: emaildomain.ChangeDeleted, RemoteID: "m1"}},
		NewCursor:       "2000",
		LastEventCursor: "1006",
	})
	puller := newChangePuller(newFakeMailItemRepo(), quietPolicy())

	first, err := puller.Pull(context.Background(), client, "u1", "1000")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(first.DeletedRemoteIDs) != 0 {
		t.Fatalf("DeletedRemoteIDs = %v, deletion is past the cap", first.DeletedRemoteIDs)
	}
	if first.NewCursor == "2000" {
		t.Fatal("committed the mailbox head past unread pages")
	}

	second, err := puller.Pull(context.Background(), client, "u1", first.NewCursor)
	if err != nil {
		t.Fatalf("second Pull: %v", err)
	}
	if !reflect.DeepEqual(second.DeletedRemoteIDs, []string{"m1"}) {
		t.Errorf("DeletedRemoteIDs = %v, want [m1] from the resumed page", second.DeletedRemoteIDs)
	}
	if second.NewCursor != "2000" {
		t.Errorf("NewCursor = %q, want 2000 once pagination completed", second.NewCursor)
	}
}
