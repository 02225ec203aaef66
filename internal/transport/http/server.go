package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"teamchat/internal/ai"
	appsvc "teamchat/internal/app"
	"teamchat/internal/bootstrap"
	"teamchat/internal/cache"
	"teamchat/internal/platform/rabbitmq"
	"teamchat/internal/repository"
	"teamchat/internal/transport/http/handler"
	"teamchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	turnRepo := repository.NewTurnRepository(app.MySQL)
	docTeamRepo := repository.NewDocumentTeamRepository(app.MySQL)
	auditRepo := repository.NewAuditLogRepository(app.MySQL)

	transcriptCache := cache.NewTranscriptCache(
		app.Redis,
		time.Duration(app.Config.Redis.TranscriptTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.TranscriptDirtyTTLSeconds)*time.Second,
	)
	publisher := rabbitmq.NewEventPublisher(app.MQConn, app.Config.RabbitMQ.AuditQueue)
	engine := ai.NewEngineClient(ai.EngineConfig{
		BaseURL: app.Config.Engine.BaseURL,
		APIKey:  app.Config.Engine.APIKey,
	})

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	accessService := appsvc.NewAccessService(docTeamRepo)
	ledgerService := appsvc.NewLedgerService(turnRepo, transcriptCache)
	chatService := appsvc.NewChatService(
		ledgerService,
		accessService,
		engine,
		publisher,
		app.Logger,
		app.Config.Chat.MaxContextTurns,
		app.Config.Chat.SearchTopK,
	)
	adminService := appsvc.NewAdminService(userRepo, docTeamRepo, auditRepo, publisher)
	documentService := appsvc.NewDocumentService(engine, accessService, docTeamRepo, publisher)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService, authService, ledgerService)
	documentHandler := handler.NewDocumentHandler(documentService, authService)
	adminHandler := handler.NewAdminHandler(adminService, authService, documentService)

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)
	authGroup.PUT("/profile", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.UpdateProfile)
	authGroup.PUT("/password", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.UpdatePassword)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.POST("/stream", chatHandler.StreamChat)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.GET("/sessions/:id", chatHandler.GetTranscript)

	docGroup := v1.Group("/documents")
	docGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	docGroup.POST("", documentHandler.Upload)
	docGroup.GET("", documentHandler.List)
	docGroup.DELETE("/:id", middleware.RequireAdmin(), documentHandler.Delete)
	docGroup.DELETE("", middleware.RequireAdmin(), documentHandler.DeleteAll)

	adminGroup := v1.Group("/admin")
	adminGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret), middleware.RequireAdmin())
	adminGroup.POST("/users", adminHandler.CreateUser)
	adminGroup.GET("/users", adminHandler.ListUsers)
	adminGroup.DELETE("/users/:username", adminHandler.DeleteUser)
	adminGroup.PUT("/users/:username/role", adminHandler.SetRoleAndTeams)
	adminGroup.PUT("/users/:username/password", adminHandler.ResetPassword)
	adminGroup.GET("/documents", adminHandler.ListDocuments)
	adminGroup.PUT("/documents/:id/teams", adminHandler.SetDocumentTeams)
	adminGroup.GET("/documents/:id/teams", adminHandler.GetDocumentTeams)
	adminGroup.GET("/teams", adminHandler.ListTeams)
	adminGroup.GET("/audit-logs", adminHandler.ListAuditLogs)

	return router
}
