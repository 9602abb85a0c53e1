package config

import (
	"os"
	"strconv"
)

type Config struct {
	// Remote session backend
	APIBaseURL string

	// SSO
	SSOToken       string
	JWTSecret      string
	IdentityClient string

	// Fallback identity when no token is configured (dev / offline use)
	UserID           string
	DefaultAuthority string

	// Local mirror
	MirrorBackend string // "sqlite" or "redis"
	MirrorPath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Store tuning
	SessionListLimit int
	SearchLimit      int

	// Logging
	LogFile string
	LogProd bool
}

func Load() Config {
	baseURL := os.Getenv("CHAT_API_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000/api"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
	}

	authority := os.Getenv("CHAT_DEFAULT_AUTHORITY")
	if authority == "" {
		authority = "SDM"
	}

	mirrorBackend := os.Getenv("CHAT_MIRROR_BACKEND")
	if mirrorBackend == "" {
		mirrorBackend = "sqlite"
	}
	mirrorPath := os.Getenv("CHAT_MIRROR_PATH")
	if mirrorPath == "" {
		mirrorPath = "chat-mirror.db"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	listLimit := 50
	if v := os.Getenv("CHAT_SESSION_LIST_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			listLimit = n
		}
	}
	searchLimit := 20
	if v := os.Getenv("CHAT_SEARCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			searchLimit = n
		}
	}

	logFile := os.Getenv("CHAT_LOG_FILE")
	if logFile == "" {
		logFile = "logs/chat-client.log"
	}

	return Config{
		APIBaseURL: baseURL,

		SSOToken:       os.Getenv("SSO_TOKEN"),
		JWTSecret:      secret,
		IdentityClient: os.Getenv("IDENTITY_CLIENT"),

		UserID:           os.Getenv("CHAT_USER_ID"),
		DefaultAuthority: authority,

		MirrorBackend: mirrorBackend,
		MirrorPath:    mirrorPath,
		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		SessionListLimit: listLimit,
		SearchLimit:      searchLimit,

		LogFile: logFile,
		LogProd: os.Getenv("APP_ENV") == "production",
	}
}
