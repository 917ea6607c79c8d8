package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds service configuration loaded from the environment.
type Config struct {
	AppEnv   string
	HTTPPort string
	LogLevel string

	MongoURI string
	MongoDB  string

	RedisAddr string

	// Real-time-media provider (LiveKit)
	LiveKitAPIKey    string
	LiveKitAPISecret string
	LiveKitURL       string

	// Public base URL mirrored onto sessions for completed recordings
	RecordingBaseURL string

	// Storage used by the provider for recording files
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Endpoint  string
	S3Bucket    string

	// Signed playback URL lifetime
	SignedURLExpirySeconds int

	// Secret for validating inbound bearer tokens (issuance lives elsewhere)
	JWTSecret string
}

// Load loads config from environment (.env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	expiry, _ := strconv.Atoi(getEnv("SIGNED_URL_EXPIRY_SECONDS", "3600"))

	cfg := &Config{
		AppEnv:                 getEnv("APP_ENV", "development"),
		HTTPPort:               getEnv("HTTP_PORT", "8080"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		MongoURI:               getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:                getEnv("MONGO_DB", "idest"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		LiveKitAPIKey:          os.Getenv("LIVEKIT_API_KEY"),
		LiveKitAPISecret:       os.Getenv("LIVEKIT_API_SECRET"),
		LiveKitURL:             os.Getenv("LIVEKIT_URL"),
		RecordingBaseURL:       os.Getenv("RECORDING_BASE_URL"),
		S3AccessKey:            os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:            os.Getenv("S3_SECRET_KEY"),
		S3Region:               getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:             os.Getenv("S3_ENDPOINT"),
		S3Bucket:               os.Getenv("S3_BUCKET"),
		SignedURLExpirySeconds: expiry,
		JWTSecret:              os.Getenv("JWT_SECRET"),
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return errors.New("config: MONGO_URI is required")
	}
	if c.LiveKitAPIKey == "" || c.LiveKitAPISecret == "" {
		return errors.New("config: LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	if c.LiveKitURL == "" {
		return errors.New("config: LIVEKIT_URL is required")
	}
	if c.AppEnv == "production" && c.JWTSecret == "" {
		return errors.New("config: in production JWT_SECRET is required")
	}
	if c.SignedURLExpirySeconds <= 0 {
		return errors.New("config: SIGNED_URL_EXPIRY_SECONDS must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.HTTPPort
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
