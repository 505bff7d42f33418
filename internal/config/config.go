package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds application configuration
type Config struct {
	// Server
	HTTPAddr string
	LogLevel string

	// Gemini API
	GeminiAPIKey      string
	GeminiAPIEndpoint string // if set, overrides default Gemini API base URL (e.g. http://localhost:31300/gemini)
	GeminiModelText   string // prompt generation, e.g. gemini-3-flash-preview
	GeminiModelImage  string // image preview, e.g. gemini-3-pro-image-preview
	GeminiTextBackend string // genai or langchaingo
	GeminiRPM         int    // outbound requests per minute across both models; 0 disables limiting

	// Generation
	PromptTemperature float64
	ImageAspectRatio  string
	ImageSize         string
	RequestTimeout    time.Duration

	// Sessions
	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration

	// Access token (bcrypt hash); empty disables auth on /api and /v1
	AccessTokenHash string

	// S3/Storage (optional preview export)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
	S3URLExpiry time.Duration
}

// S3Enabled reports whether enough S3 settings are present to export previews.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && (c.S3AccessKey != "" || c.S3Endpoint != "")
}

// Load loads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment values win.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file, using process environment only")
	}

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint: getEnv("GEMINI_API_ENDPOINT", ""),
		GeminiModelText:   getEnv("GEMINI_MODEL_TEXT", "gemini-3-flash-preview"),
		GeminiModelImage:  getEnv("GEMINI_MODEL_IMAGE", "gemini-3-pro-image-preview"),
		GeminiTextBackend: getEnv("GEMINI_TEXT_BACKEND", "genai"),
		GeminiRPM:         clampMin(getEnvInt("GEMINI_REQUESTS_PER_MINUTE", 0), 0),

		PromptTemperature: getEnvFloat("PROMPT_TEMPERATURE", 0.7),
		ImageAspectRatio:  getEnv("IMAGE_ASPECT_RATIO", "9:16"),
		ImageSize:         getEnv("IMAGE_SIZE", "1K"),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 120*time.Second),

		SessionTTL:             getEnvDuration("SESSION_TTL", 2*time.Hour),
		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute),

		AccessTokenHash: getEnv("ACCESS_TOKEN_HASH", ""),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3PublicURL: getEnv("S3_PUBLIC_URL", ""),
		S3URLExpiry: getEnvDuration("S3_URL_EXPIRY", time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// clampMin returns v if v >= min, otherwise min. Used to ensure config values are in valid range.
func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
