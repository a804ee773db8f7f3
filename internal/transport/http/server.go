package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appsvc "docuchat/internal/app"
	"docuchat/internal/bootstrap"
	"docuchat/internal/cache"
	"docuchat/internal/platform/rabbitmq"
	"docuchat/internal/repository"
	"docuchat/internal/transport/http/handler"
	"docuchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(
		gin.Logger(),
		gin.Recovery(),
		middleware.RequestID(),
		middleware.CORS(),
		middleware.Metrics(),
	)

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/api/health", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	documentRepo := repository.NewDocumentRepository(app.MySQL)
	chunkRepo := repository.NewChunkRepository(app.MySQL)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	providerRouter := appsvc.NewProviderRouter(app.Config.Providers, app.Config.RAG)
	publisher := rabbitmq.NewDocumentPublisher(app.MQConn, app.Config.RabbitMQ.DocumentQueue)
	documentService := appsvc.NewDocumentService(
		documentRepo,
		chunkRepo,
		app.Index,
		publisher,
		app.Config.Ingest,
		app.Config.RAG,
	)
	ragService := appsvc.NewRAGService(
		documentRepo,
		chunkRepo,
		app.Index,
		providerRouter,
		providerRouter,
		app.Config.RAG,
	)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	chatService := appsvc.NewChatService(sessionRepo, messageRepo, historyCache, ragService)
	voiceService := appsvc.NewVoiceService(providerRouter)

	authHandler := handler.NewAuthHandler(authService)
	documentHandler := handler.NewDocumentHandler(documentService)
	queryHandler := handler.NewQueryHandler(ragService)
	chatHandler := handler.NewChatHandler(chatService)
	voiceHandler := handler.NewVoiceHandler(voiceService)

	api := router.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	// Rate limiting sits behind auth so buckets key on the user id.
	authed := api.Group("")
	authed.Use(
		middleware.AuthJWT(app.Config.Auth.JWTSecret),
		middleware.RateLimit(app.Config.RateLimit),
	)

	authed.POST("/documents", documentHandler.Upload)
	authed.POST("/documents/url", documentHandler.FetchURL)
	authed.GET("/documents", documentHandler.List)
	authed.GET("/documents/:id", documentHandler.Get)
	authed.GET("/documents/:id/chunks", documentHandler.Chunks)
	authed.POST("/documents/:id/reprocess", documentHandler.Reprocess)
	authed.DELETE("/documents/:id", documentHandler.Delete)

	authed.POST("/query", queryHandler.Query)
	authed.POST("/query/compare", queryHandler.Compare)
	authed.GET("/stats", queryHandler.Stats)

	authed.POST("/sessions", chatHandler.CreateSession)
	authed.GET("/sessions", chatHandler.ListSessions)
	authed.GET("/sessions/:id/messages", chatHandler.GetMessages)
	authed.POST("/sessions/:id/messages", chatHandler.SendMessage)
	authed.POST("/sessions/:id/messages/stream", chatHandler.StreamMessage)
	authed.DELETE("/sessions/:id", chatHandler.DeleteSession)

	authed.POST("/voice/transcriptions", voiceHandler.Transcribe)
	authed.POST("/voice/speech", voiceHandler.Speech)
	authed.GET("/voice/status", voiceHandler.Status)

	return router
}
