package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RatePolicy bounds the number of requests a client may issue against one
// endpoint class within a window.
type RatePolicy struct {
	Requests int
	Window   time.Duration
}

type Config struct {
	Port          string
	AllowedOrigin string

	// Completion service
	OpenAIAPIKey    string
	Model           string
	GenerateTimeout time.Duration
	ComposeTimeout  time.Duration

	// Storage
	DatabaseURL   string
	MigrationsDir string
	RedisURL      string

	// Sessions
	JWTSecret  string
	SessionTTL time.Duration

	// Rate limiting, keyed by endpoint class
	RatePolicies      map[string]RatePolicy
	RateLimitFailOpen bool

	// Threat detection policy
	MaxInputLength int
	BlockSeverity  int
	RiskThreshold  int

	// Query execution
	MaxRows        int
	QueryTimeout   time.Duration
	SchemaCacheTTL time.Duration

	// Prompt specs
	SQLPromptPath    string
	AnswerPromptPath string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Port:            getEnvDefault("PORT", "8080"),
		AllowedOrigin:   getEnvDefault("ALLOWED_ORIGIN", "*"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		Model:           getEnvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		GenerateTimeout: getEnvDurationDefault("GENERATE_TIMEOUT", 20*time.Second),
		ComposeTimeout:  getEnvDurationDefault("COMPOSE_TIMEOUT", 20*time.Second),
		DatabaseURL:     os.Getenv("DB_URL"),
		MigrationsDir:   getEnvDefault("MIGRATIONS_DIR", "./migrations"),
		RedisURL:        os.Getenv("REDIS_URL"),
		JWTSecret:       getEnvDefault("JWT_SECRET", "dev-only-secret"),
		SessionTTL:      getEnvDurationDefault("SESSION_TTL", 24*time.Hour),
		RatePolicies: map[string]RatePolicy{
			"chat":     {Requests: getEnvIntDefault("CHAT_RATE_LIMIT", 30), Window: getEnvDurationDefault("CHAT_RATE_WINDOW", time.Minute)},
			"validate": {Requests: getEnvIntDefault("VALIDATE_RATE_LIMIT", 30), Window: getEnvDurationDefault("VALIDATE_RATE_WINDOW", time.Minute)},
			"health":   {Requests: getEnvIntDefault("HEALTH_RATE_LIMIT", 100), Window: getEnvDurationDefault("HEALTH_RATE_WINDOW", time.Minute)},
		},
		RateLimitFailOpen: getEnvBoolDefault("RATE_LIMIT_FAIL_OPEN", false),
		MaxInputLength:    getEnvIntDefault("THREAT_MAX_INPUT_LENGTH", 1000),
		BlockSeverity:     getEnvIntDefault("THREAT_BLOCK_SEVERITY", 8),
		RiskThreshold:     getEnvIntDefault("THREAT_RISK_THRESHOLD", 12),
		MaxRows:           getEnvIntDefault("QUERY_MAX_ROWS", 100),
		QueryTimeout:      getEnvDurationDefault("QUERY_TIMEOUT", 30*time.Second),
		SchemaCacheTTL:    getEnvDurationDefault("SCHEMA_CACHE_TTL", 5*time.Minute),
		SQLPromptPath:     getEnvDefault("SQL_PROMPT_PATH", "./prompts/nl2sql.yaml"),
		AnswerPromptPath:  getEnvDefault("ANSWER_PROMPT_PATH", "./prompts/answer.yaml"),
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("warning: OPENAI_API_KEY is not set; API calls will fail until provided")
	}
	if cfg.JWTSecret == "dev-only-secret" {
		log.Println("warning: JWT_SECRET is not set; using insecure development secret")
	}
	return cfg
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
		log.Printf("warning: invalid %s=%q, using default %d", key, v, def)
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
		// Bare numbers are treated as seconds
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
		log.Printf("warning: invalid %s=%q, using default %s", key, v, def)
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}
