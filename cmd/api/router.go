package api

import (
	"net/http"

	"mailpilot-backend/internal/auth/delivery"
	authUsecase "mailpilot-backend/internal/auth/usecase"
	emailDelivery "mailpilot-backend/internal/email/delivery"
	emailUsecase "mailpilot-backend/internal/email/usecase"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, syncUsecase emailUsecase.SyncUsecase) {
	authHandler := delivery.NewAuthHandler(authUsecase)
	mailHandler := emailDelivery.NewMailHandler(syncUsecase)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/google", authHandler.GoogleSignIn)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", delivery.AuthMiddleware(authUsecase), authHandler.Me)
			auth.POST("/logout", authHandler.Logout)
			auth.POST("/mailbox", delivery.AuthMiddleware(authUsecase), authHandler.ConnectMailbox)
			auth.DELETE("/mailbox", delivery.AuthMiddleware(authUsecase), authHandler.DisconnectMailbox)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(delivery.AuthMiddleware(authUsecase))
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Email routes (protected)
		emails := api.Group("/emails")
		emails.Use(delivery.AuthMiddleware(authUsecase))
		{
			emails.GET("", mailHandler.ListMailItems)
			emails.GET("/:id", mailHandler.GetMailItem)
			emails.POST("/:id/trash", mailHandler.TrashMailItem)
			emails.POST("/:id/archive", mailHandler.ArchiveMailItem)
			emails.POST("/:id/read", mailHandler.MarkAsRead)
			emails.POST("/:id/unread", mailHandler.MarkAsUnread)
			emails.PATCH("/:id/labels", mailHandler.UpdateLabels)
			emails.PATCH("/:id/category", mailHandler.UpdateCategory)
		}

		// Sync routes (protected)
		sync := api.Group("/sync")
		sync.Use(delivery.AuthMiddleware(authUsecase))
		{
			sync.POST("/run", mailHandler.RunSync)
			sync.GET("/status", mailHandler.GetSyncStatus)
			sync.GET("/operations/:id", mailHandler.GetOperation)
			sync.POST("/watch", mailHandler.WatchMailbox)
			sync.POST("/stop", mailHandler.StopWatchMailbox)
		}

		// Category routes (protected)
		categories := api.Group("/categories")
		categories.Use(delivery.AuthMiddleware(authUsecase))
		{
			categories.GET("", mailHandler.ListCategories)
			categories.POST("", mailHandler.CreateCategory)
			categories.PUT("/:name", mailHandler.UpdateCategoryConfig)
			categories.DELETE("/:name", mailHandler.DeleteCategory)
		}
	}
}
