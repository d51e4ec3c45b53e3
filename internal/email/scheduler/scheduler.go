package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	authrepo "mailpilot-backend/internal/auth/repository"
	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/email/usecase"
)

// SyncScheduler runs periodic sync cycles for every user with background sync
// enabled. It is the safety net behind push notifications: mailboxes converge
// even when a push is lost.
type SyncScheduler struct {
	syncUsecase usecase.SyncUsecase
	userRepo    authrepo.UserRepository
	interval    time.Duration
	stopChan    chan struct{}
}

// NewSyncScheduler creates a new scheduler
func NewSyncScheduler(syncUsecase usecase.SyncUsecase, userRepo authrepo.UserRepository, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{
		syncUsecase: syncUsecase,
		userRepo:    userRepo,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *SyncScheduler) Start() {
	if s.interval <= 0 {
		log.Println("[SyncScheduler] Interval not configured, scheduler disabled")
		return
	}

	log.Printf("[SyncScheduler] Starting periodic sync (interval: %s)", s.interval)

	go func() {
		// Run immediately on start
		s.syncAll()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.syncAll()
			case <-s.stopChan:
				log.Println("[SyncScheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *SyncScheduler) Stop() {
	close(s.stopChan)
}

func (s *SyncScheduler) syncAll() {
	users, err := s.userRepo.ListSyncEnabled()
	if err != nil {
		log.Printf("[SyncScheduler] Error listing sync-enabled users: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}

	for _, user := range users {
		if !user.HasMailCredentials() {
			continue
		}

		result, err := s.syncUsecase.RunSyncCycle(context.Background(), user.ID)
		if err != nil {
			if errors.Is(err, emaildomain.ErrCycleInProgress) {
				// A push-triggered cycle is already running, skip this round.
				continue
			}
			log.Printf("[SyncScheduler] Sync failed for user %s: %v", user.ID, err)
			continue
		}

		if result.NewItems > 0 || result.DeletedCount > 0 || result.LabelChanges > 0 || result.OperationsPushed > 0 {
			log.Printf("[SyncScheduler] User %s: %d new, %d deleted, %d relabeled, %d pushed (%d failed)",
				user.ID, result.NewItems, result.DeletedCount, result.LabelChanges,
				result.OperationsPushed, result.OperationsFailed)
		}
	}
}
