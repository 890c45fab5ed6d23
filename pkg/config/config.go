package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
	}

	// JWT configuration
	JWT struct {
		Secret      string
		ExpiryHours time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// LLM provider configuration
	LLM struct {
		OpenRouterBaseURL string
		VolcengineBaseURL string
		DefaultProvider   string
		DefaultModel      string
		Temperature       float64
		RequestTimeout    time.Duration
		IdleReadTimeout   time.Duration
	}

	// Chat turn limits
	Chat struct {
		MaxHistoryCap           int
		MaxConversationsPerChar int
		MaxCharactersPerUser    int
	}

	// Cache settings
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	// Redis settings
	Redis struct {
		Addr     string
		UsageTTL time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "8081")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)

		// Database config
		instance.Database.Host = getEnvString("DB_HOST", "localhost")
		instance.Database.Port = getEnvString("DB_PORT", "5432")
		instance.Database.User = getEnvString("DB_USER", "postgres")
		instance.Database.Password = getEnvString("DB_PASSWORD", "postgres")
		instance.Database.Name = getEnvString("DB_NAME", "lighttavern")
		instance.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
		instance.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)

		// JWT config
		instance.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
		instance.JWT.ExpiryHours = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

		// Security config
		instance.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
		instance.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
		instance.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
		instance.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
		instance.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")

		// LLM provider config
		instance.LLM.OpenRouterBaseURL = getEnvString("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
		instance.LLM.VolcengineBaseURL = getEnvString("VOLCENGINE_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		instance.LLM.DefaultProvider = getEnvString("LLM_DEFAULT_PROVIDER", "openrouter")
		instance.LLM.DefaultModel = getEnvString("LLM_DEFAULT_MODEL", "openai/gpt-4o-mini")
		instance.LLM.Temperature = getEnvFloat("LLM_TEMPERATURE", 0.7)
		instance.LLM.RequestTimeout = getEnvDuration("LLM_REQUEST_TIMEOUT", 2*time.Minute)
		instance.LLM.IdleReadTimeout = getEnvDuration("LLM_IDLE_READ_TIMEOUT", 60*time.Second)

		// Chat limits
		instance.Chat.MaxHistoryCap = getEnvInt("CHAT_MAX_HISTORY_CAP", 200)
		instance.Chat.MaxConversationsPerChar = getEnvInt("CHAT_MAX_CONVERSATIONS_PER_CHARACTER", 20)
		instance.Chat.MaxCharactersPerUser = getEnvInt("CHAT_MAX_CHARACTERS_PER_USER", 50)

		// Cache settings
		instance.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
		instance.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
		instance.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
		instance.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

		// Redis settings
		instance.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")
		instance.Redis.UsageTTL = getEnvDuration("REDIS_USAGE_TTL", 40*24*time.Hour)
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
