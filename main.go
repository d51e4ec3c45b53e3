package main

import (
	"context"
	"log"
	"strings"

	api "mailpilot-backend/cmd/api"
	authdomain "mailpilot-backend/internal/auth/domain"
	authRepo "mailpilot-backend/internal/auth/repository"
	authUsecase "mailpilot-backend/internal/auth/usecase"
	emaildomain "mailpilot-backend/internal/email/domain"
	emailRepo "mailpilot-backend/internal/email/repository"
	"mailpilot-backend/internal/email/scheduler"
	emailUsecase "mailpilot-backend/internal/email/usecase"
	"mailpilot-backend/internal/notification"
	"mailpilot-backend/pkg/ai"
	"mailpilot-backend/pkg/config"
	"mailpilot-backend/pkg/database"
	"mailpilot-backend/pkg/fcm"
	"mailpilot-backend/pkg/gmail"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&authdomain.FCMToken{},
		&emaildomain.MailItem{},
		&emaildomain.SyncOperation{},
		&emaildomain.SyncCheckpoint{},
		&emaildomain.Category{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	mailItemRepo := emailRepo.NewMailItemRepository(db)
	operationRepo := emailRepo.NewOperationRepository(db)
	checkpointRepo := emailRepo.NewCheckpointRepository(db)
	categoryRepo := emailRepo.NewCategoryRepository(db)

	// Initialize Gmail provider
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)

	// Initialize categorizer
	categorizer, err := ai.NewCategorizerService(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		log.Fatal("Failed to initialize categorizer:", err)
	}

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, fcmTokenRepo, cfg)
	syncUsecaseInstance := emailUsecase.NewSyncUsecase(
		mailItemRepo, operationRepo, checkpointRepo, categoryRepo,
		userRepo, gmailService, categorizer, cfg,
	)

	// Initialize Notification Service (Pub/Sub)
	if cfg.PubsubProjectID != "" {
		// Extract short topic name from full resource name if necessary
		topicName := cfg.PubsubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		if topicName == "" {
			topicName = "gmail-updates"
		}

		var fcmClient *fcm.Client
		if cfg.FirebaseCredentialsFile != "" {
			fcmClient, err = fcm.NewClient(cfg.FirebaseCredentialsFile)
			if err != nil {
				log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
			}
		}

		notifService, err := notification.NewService(
			cfg.PubsubProjectID, topicName, cfg.PubsubSubscription,
			userRepo, fcmTokenRepo, fcmClient,
			syncUsecaseInstance, mailItemRepo,
			cfg.FirebaseCredentialsFile,
		)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Printf("[WARN] PUBSUB_PROJECT_ID not configured, notification service disabled")
	}

	// Start the periodic sync scheduler
	syncScheduler := scheduler.NewSyncScheduler(syncUsecaseInstance, userRepo, cfg.SyncInterval)
	syncScheduler.Start()
	defer syncScheduler.Stop()

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, syncUsecaseInstance, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
