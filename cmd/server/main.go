package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lighttavern/backend/internal/llm"
	"lighttavern/backend/internal/models"
	"lighttavern/backend/internal/service"
	"lighttavern/backend/pkg/cache"
	"lighttavern/backend/pkg/config"
	"lighttavern/backend/pkg/health"
	"lighttavern/backend/pkg/jwt"
	"lighttavern/backend/pkg/logger"
	"lighttavern/backend/pkg/router"
	"lighttavern/backend/pkg/secrets"
	"lighttavern/backend/shared/observability"
	"lighttavern/backend/shared/redis"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg := config.New()

	appLogger := logger.New(logger.Config{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.Format == "json",
	})
	logger.SetGlobal(appLogger)

	if err := secrets.Init(appLogger); err != nil {
		appLogger.Error("Failed to initialize secrets manager", "error", err.Error())
		os.Exit(1)
	}

	db, err := config.NewDB()
	if err != nil {
		appLogger.Error("Failed to connect to database", "error", err.Error())
		os.Exit(1)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.UserSetting{},
		&models.Character{},
		&models.CharacterExample{},
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		appLogger.Error("Failed to run migrations", "error", err.Error())
		os.Exit(1)
	}

	// Observability
	shutdownTracing := observability.SetupTracing("lighttavern-backend")
	defer shutdownTracing()
	observability.SetupPrometheusMetrics()
	chatMetrics, err := observability.NewChatMetrics()
	if err != nil {
		appLogger.Warn("Failed to register chat metrics", "error", err.Error())
	}

	redisClient := redis.NewClient(cfg.Redis.Addr)
	defer redisClient.Close()

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)

	var characterCache *cache.Cache
	if cfg.Cache.Enabled {
		characterCache = cache.NewCache()
	}

	// Services
	userService := service.NewUserService(db, jwtService)
	characterService := service.NewCharacterService(db, characterCache, cfg.Chat.MaxCharactersPerUser)
	conversationService := service.NewConversationService(db, characterService, cfg.Chat.MaxConversationsPerChar)
	messageService := service.NewMessageService(db, conversationService)
	settingsService := service.NewSettingsService(db, cfg)
	usageRecorder := service.NewUsageRecorder(redisClient, cfg.Redis.UsageTTL, appLogger)

	registry := llm.NewRegistry(cfg)
	chatService := service.NewChatService(
		cfg,
		registry,
		characterService,
		conversationService,
		messageService,
		settingsService,
		usageRecorder,
		secrets.GetManager(),
		appLogger,
	)
	chatService.SetMetrics(chatMetrics)

	// Health checks
	healthChecker := health.NewChecker(appLogger, 30*time.Second)
	healthChecker.RegisterDatabaseCheck(func() error {
		return config.TestConnection(db)
	})
	healthChecker.RegisterCheck("redis", func() (health.Status, string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx); err != nil {
			return health.StatusDegraded, "Redis unreachable, usage counters paused", err
		}
		return health.StatusUp, "Redis connection is established", nil
	})
	healthChecker.RegisterAPICheck("openrouter", cfg.LLM.OpenRouterBaseURL+"/models",
		&http.Client{Timeout: 5 * time.Second})
	healthChecker.Start()

	// Router
	r := router.New(router.Deps{
		Config:        cfg,
		Logger:        appLogger,
		JWTService:    jwtService,
		HealthChecker: healthChecker,
		Users:         userService,
		Characters:    characterService,
		Conversations: conversationService,
		Messages:      messageService,
		Settings:      settingsService,
		Chat:          chatService,
	})
	r.SetupRoutes()
	if schemaPath := os.Getenv("OPENAPI_SCHEMA_PATH"); schemaPath != "" {
		r.AddOpenAPIValidation(schemaPath)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r.Engine,
		// No global write timeout: chat responses stream for minutes.
		ReadTimeout: cfg.Server.Timeout,
	}

	go func() {
		appLogger.Info("Server starting", "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	appLogger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err.Error())
	}
	appLogger.Info("Server exited")
}
