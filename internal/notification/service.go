package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	authrepo "mailpilot-backend/internal/auth/repository"
	emaildomain "mailpilot-backend/internal/email/domain"
	emailrepo "mailpilot-backend/internal/email/repository"
	"mailpilot-backend/internal/email/usecase"
	"mailpilot-backend/pkg/fcm"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// MailboxNotification is the payload Gmail publishes on the watch topic.
type MailboxNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service consumes mailbox push notifications and turns each into a sync
// cycle. When the cycle imports new mail it notifies the user's devices over
// FCM.
type Service struct {
	pubsubClient *pubsub.Client
	userRepo     authrepo.UserRepository
	fcmRepo      authrepo.FCMTokenRepository
	fcmClient    *fcm.Client
	syncUsecase  usecase.SyncUsecase
	mailItemRepo emailrepo.MailItemRepository
	topicName    string
	subName      string
	// lastHistoryID deduplicates notifications per user; Gmail redelivers
	// aggressively. Receive dispatches callbacks concurrently, so access
	// goes through the mutex.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(
	projectID, topicName, subName string,
	userRepo authrepo.UserRepository,
	fcmRepo authrepo.FCMTokenRepository,
	fcmClient *fcm.Client,
	syncUsecase usecase.SyncUsecase,
	mailItemRepo emailrepo.MailItemRepository,
	credentialsFile string,
) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	if subName == "" {
		subName = topicName + "-sub"
	}

	return &Service{
		pubsubClient:  client,
		userRepo:      userRepo,
		fcmRepo:       fcmRepo,
		fcmClient:     fcmClient,
		syncUsecase:   syncUsecase,
		mailItemRepo:  mailItemRepo,
		topicName:     topicName,
		subName:       subName,
		lastHistoryID: make(map[string]uint64),
	}, nil
}

func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic %s does not exist, cannot create subscription", s.topicName)
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var notification MailboxNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}

	log.Printf("[PubSub] Notification for %s (historyId: %d)", notification.EmailAddress, notification.HistoryID)

	user, err := s.userRepo.FindByEmail(notification.EmailAddress)
	if err != nil {
		log.Printf("[PubSub] Error finding user by email %s: %v", notification.EmailAddress, err)
		return
	}
	if user == nil {
		log.Printf("[PubSub] No user for email %s", notification.EmailAddress)
		return
	}

	if s.alreadySeen(user.ID, notification.HistoryID) {
		return
	}

	result, err := s.syncUsecase.RunSyncCycle(ctx, user.ID)
	if err != nil {
		if errors.Is(err, emaildomain.ErrCycleInProgress) {
			// The running cycle picks these changes up; nothing lost.
			return
		}
		log.Printf("[PubSub] Sync after notification failed for user %s: %v", user.ID, err)
		return
	}

	if result.NewItems > 0 {
		s.notifyNewMail(user.ID, notification, result.NewItems)
	}
}

// alreadySeen records the notification's history id and reports whether an
// equal or newer one was handled for the user before.
func (s *Service) alreadySeen(userID string, historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastHistoryID[userID]; ok && historyID <= last {
		return true
	}
	s.lastHistoryID[userID] = historyID
	return false
}

// notifyNewMail pushes an FCM notification describing the newest imported
// item.
func (s *Service) notifyNewMail(userID string, notification MailboxNotification, newItems int) {
	if s.fcmClient == nil || s.fcmRepo == nil {
		return
	}

	tokens, err := s.fcmRepo.GetTokensByUserID(userID)
	if err != nil {
		log.Printf("[FCM] Error getting tokens for user %s: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	title := "New mail"
	body := fmt.Sprintf("You have %d new messages", newItems)
	itemID := ""
	if items, _, err := s.mailItemRepo.List(userID, 1, 0); err == nil && len(items) > 0 {
		latest := items[0]
		sender := latest.FromName
		if sender == "" {
			sender = latest.From
		}
		subject := latest.Subject
		if len(subject) > 100 {
			subject = subject[:97] + "..."
		}
		if subject == "" {
			subject = "(no subject)"
		}
		title = fmt.Sprintf("Mail from %s", sender)
		body = subject
		itemID = latest.ID
	}

	var tokenStrings []string
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failedTokens, err := s.fcmClient.SendToDevices(context.Background(), tokenStrings, fcm.NotificationData{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":         "mail_update",
			"email":        notification.EmailAddress,
			"historyId":    strconv.FormatUint(notification.HistoryID, 10),
			"itemId":       itemID,
			"click_action": s.buildClickAction(itemID),
		},
	})
	if err != nil {
		log.Printf("[FCM] Error sending notifications: %v", err)
		return
	}

	for _, token := range failedTokens {
		s.fcmRepo.DeleteToken(token)
	}
}

// buildClickAction returns the URL path for opening a specific mail item
func (s *Service) buildClickAction(itemID string) string {
	if itemID == "" {
		return "/inbox"
	}
	return fmt.Sprintf("/inbox/%s", itemID)
}
