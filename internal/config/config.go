package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the practice coaching service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowedOrigin  string
	AllowAnyOrigin bool

	LogLevel  string
	LogFormat string

	DatabaseURL string
	StatePath   string

	JWTSecret          string
	JWTSecretGenerated bool
	JWTTTL             time.Duration
	BcryptCost         int

	PracticeClockInterval   time.Duration
	PracticeMetricsInterval time.Duration
	PracticeEyeInterval     time.Duration
	PracticeMinSaveSeconds  int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "echo"),
		AllowedOrigin:            envOrDefault("APP_ALLOWED_ORIGIN", "http://localhost:3000"),
		AllowAnyOrigin:           false,
		LogLevel:                 envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:                envOrDefault("APP_LOG_FORMAT", "json"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		StatePath:                stringsTrimSpace("APP_STATE_PATH"),
		JWTSecret:                stringsTrimSpace("JWT_SECRET"),
		JWTTTL:                   7 * 24 * time.Hour,
		BcryptCost:               10,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		PracticeClockInterval:    time.Second,
		PracticeMetricsInterval:  500 * time.Millisecond,
		PracticeEyeInterval:      500 * time.Millisecond,
		PracticeMinSaveSeconds:   10,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.JWTTTL, err = durationFromEnv("JWT_TTL", cfg.JWTTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.BcryptCost, err = intFromEnv("BCRYPT_COST", cfg.BcryptCost)
	if err != nil {
		return Config{}, err
	}
	cfg.PracticeClockInterval, err = durationFromEnv("PRACTICE_CLOCK_INTERVAL", cfg.PracticeClockInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PracticeMetricsInterval, err = durationFromEnv("PRACTICE_METRICS_INTERVAL", cfg.PracticeMetricsInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PracticeEyeInterval, err = durationFromEnv("PRACTICE_EYE_INTERVAL", cfg.PracticeEyeInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PracticeMinSaveSeconds, err = intFromEnv("PRACTICE_MIN_SAVE_SECONDS", cfg.PracticeMinSaveSeconds)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return Config{}, fmt.Errorf("APP_LOG_FORMAT must be json or text")
	}
	if cfg.JWTTTL < time.Minute {
		return Config{}, fmt.Errorf("JWT_TTL must be at least 1m")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return Config{}, fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	if cfg.PracticeClockInterval <= 0 || cfg.PracticeMetricsInterval <= 0 || cfg.PracticeEyeInterval <= 0 {
		return Config{}, fmt.Errorf("PRACTICE_*_INTERVAL values must be positive")
	}
	if cfg.PracticeMinSaveSeconds <= 0 {
		return Config{}, fmt.Errorf("PRACTICE_MIN_SAVE_SECONDS must be positive")
	}
	if cfg.JWTSecret == "" {
		// Tokens signed with a generated secret stop verifying on restart.
		cfg.JWTSecret, err = randomSecret()
		if err != nil {
			return Config{}, err
		}
		cfg.JWTSecretGenerated = true
	} else if len(cfg.JWTSecret) < 16 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}

	return cfg, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate JWT secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
