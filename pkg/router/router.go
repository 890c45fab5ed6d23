package router

import (
	"net/http"
	"time"

	"lighttavern/backend/internal/api"
	"lighttavern/backend/internal/service"
	"lighttavern/backend/internal/ws"
	"lighttavern/backend/pkg/config"
	"lighttavern/backend/pkg/errors"
	"lighttavern/backend/pkg/health"
	"lighttavern/backend/pkg/jwt"
	"lighttavern/backend/pkg/logger"
	"lighttavern/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Deps carries everything the router needs to wire the handlers.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	JWTService    *jwt.Service
	HealthChecker *health.Checker

	Users         *service.UserService
	Characters    *service.CharacterService
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Settings      *service.SettingsService
	Chat          *service.ChatService
}

// Router is the main router for the application
type Router struct {
	Engine *gin.Engine
	Logger *logger.Logger
	Config *config.Config
	deps   Deps
}

// New creates a new router with the standard middleware chain
func New(deps Deps) *Router {
	logger.SetGlobal(deps.Logger)

	if deps.Config.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.SetTrustedProxies(deps.Config.Security.TrustedProxies)

	// Logger middleware first so every request is captured
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(deps.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	limiterOpts := middleware.DefaultRateLimiterOptions()
	limiterOpts.Limit = rate.Limit(deps.Config.Security.RateLimit)
	limiterOpts.Burst = deps.Config.Security.RateLimitBurst
	rateLimiter := middleware.NewRateLimiter(deps.Logger, limiterOpts)
	engine.Use(rateLimiter.Middleware())

	if maxBody := deps.Config.Security.MaxBodySize; maxBody > 0 {
		engine.Use(func(c *gin.Context) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
			c.Next()
		})
	}

	return &Router{
		Engine: engine,
		Logger: deps.Logger,
		Config: deps.Config,
		deps:   deps,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.Engine.Use(corsMiddleware(r.Config.Security.AllowedOrigins))

	jwtAuth := middleware.JWTAuthMiddleware(r.deps.JWTService, r.Logger)

	authHandler := api.NewAuthHandler(r.deps.Users, r.Logger)
	characterHandler := api.NewCharacterHandler(r.deps.Characters, r.Logger)
	conversationHandler := api.NewConversationHandler(
		r.deps.Conversations,
		r.deps.Messages,
		r.deps.Characters,
		r.deps.Settings,
		r.Logger,
	)
	settingsHandler := api.NewSettingsHandler(r.deps.Settings, r.deps.Chat, r.Logger)
	chatHandler := api.NewChatHandler(r.deps.Chat, r.Logger)
	wsHandler := ws.NewChatHandler(r.deps.Chat, r.Logger)

	r.setupHealthRoutes()
	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRoutes := r.Engine.Group("/api/auth")
	{
		authRoutes.POST("/signup", authHandler.Signup)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.GET("/me", jwtAuth, authHandler.Me)
	}

	protected := r.Engine.Group("/api")
	protected.Use(jwtAuth)
	{
		adminRoutes := protected.Group("/admin")
		adminRoutes.Use(middleware.RequireRole(jwt.RoleAdmin))
		{
			adminRoutes.PUT("/users/:id/role", authHandler.UpdateUserRole)
		}

		characterRoutes := protected.Group("/characters")
		{
			characterRoutes.POST("", middleware.RequirePermission(jwt.PermWriteCharacter), characterHandler.CreateCharacter)
			characterRoutes.GET("", middleware.RequirePermission(jwt.PermReadCharacter), characterHandler.ListCharacters)
			characterRoutes.GET("/:id", middleware.RequirePermission(jwt.PermReadCharacter), characterHandler.GetCharacter)
			characterRoutes.PUT("/:id", middleware.RequirePermission(jwt.PermWriteCharacter), characterHandler.UpdateCharacter)
			characterRoutes.DELETE("/:id", middleware.RequirePermission(jwt.PermDeleteCharacter), characterHandler.DeleteCharacter)
		}

		chatRoutes := protected.Group("/chats")
		{
			chatRoutes.POST("", conversationHandler.CreateConversation)
			chatRoutes.GET("/character/:characterId", conversationHandler.ListConversations)
			chatRoutes.DELETE("/:id", conversationHandler.DeleteConversation)
			chatRoutes.GET("/:id/messages", conversationHandler.GetMessages)
			chatRoutes.POST("/:id/messages", conversationHandler.CreateMessage)
			chatRoutes.DELETE("/:id/messages", conversationHandler.ClearMessages)
		}

		protected.GET("/chat-init/:characterId", conversationHandler.ChatInit)

		protected.GET("/settings", settingsHandler.GetSettings)
		protected.PUT("/settings", settingsHandler.UpdateSettings)
		protected.POST("/test-key", settingsHandler.TestKey)
		protected.POST("/models", settingsHandler.ListModels)

		protected.POST("/chat", middleware.RequirePermission(jwt.PermChat), chatHandler.ChatTurn)

		protected.GET("/ws/chat", middleware.RequirePermission(jwt.PermChat), wsHandler.Serve)
	}
}

// setupHealthRoutes registers health check endpoints
func (r *Router) setupHealthRoutes() {
	healthHandler := func(c *gin.Context) {
		status := "ok"
		code := 200
		if r.deps.HealthChecker != nil && !r.deps.HealthChecker.IsSystemHealthy() {
			status = "degraded"
			code = 503
		}

		payload := gin.H{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
		}
		if r.deps.HealthChecker != nil {
			payload["components"] = r.deps.HealthChecker.GetStatus()
		}

		c.JSON(code, payload)
	}

	// Register both health endpoint paths for compatibility
	r.Engine.GET("/health", healthHandler)
	r.Engine.GET("/api/health", healthHandler)
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case origin == "":
			origin = "*"
		case !allowAll && !allowed[origin]:
			c.Next()
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, X-CSRF-Token, Authorization, Origin, Upgrade, Connection, Cache-Control")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection, X-Prompt-Debug")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
