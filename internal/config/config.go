package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// LLM provider selection. Provider is one of "openai" (any OpenAI-compatible
	// endpoint, Mistral by default), "gemini" or "bedrock".
	LLMProvider         string
	LLMFallbackProvider string
	LLMAPIKey           string
	LLMBaseURL          string
	LLMModel            string
	LLMTimeout          time.Duration
	GeminiAPIKey        string
	GeminiModel         string
	BedrockModelID      string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string

	AllowFakePayments bool

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Simulation timings
	SimMaxAttempts  int
	SimRetryDelay   time.Duration
	SimSettleDelay  time.Duration
	SimQuestionSize int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMAPIKey:           getEnv("LLM_API_KEY", ""),
		LLMBaseURL:          getEnv("LLM_BASE_URL", "https://api.mistral.ai/v1"),
		LLMModel:            getEnv("LLM_MODEL", "mistral-small-latest"),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		AllowFakePayments: getEnvAsBool("ALLOW_FAKE_PAYMENTS", true),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "FuncionárioPro"),

		SimMaxAttempts:  getEnvAsInt("SIM_MAX_ATTEMPTS", 3),
		SimRetryDelay:   getEnvAsDuration("SIM_RETRY_DELAY", 1500*time.Millisecond),
		SimSettleDelay:  getEnvAsDuration("SIM_SETTLE_DELAY", time.Second),
		SimQuestionSize: getEnvAsInt("SIM_QUESTION_MAX_CHARS", 500),
	}
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
