package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// StorageDriver selects the user repository: "postgres" or "memory".
	StorageDriver string

	// Session (JWT stored in an HTTP-only cookie)
	JWTSecret     string
	SessionExpiry time.Duration
	CookieSecure  bool

	// One-time passcodes
	OTPTTL         time.Duration
	OTPMaxAttempts int

	// Cloudflare Turnstile
	TurnstileSecretKey string
	TurnstileVerifyURL string

	// Maintenance
	LogRetention time.Duration

	// Server
	Port        string
	CORSOrigins string
	AppEnv      string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "challenge"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		StorageDriver: getEnv("STORAGE_DRIVER", "postgres"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		SessionExpiry: parseDuration(getEnv("SESSION_EXPIRY", "720h"), 720*time.Hour),
		CookieSecure:  parseBool(getEnv("COOKIE_SECURE", "true")),

		OTPTTL:         parseDuration(getEnv("OTP_TTL", "15m"), 15*time.Minute),
		OTPMaxAttempts: parseInt(getEnv("OTP_MAX_ATTEMPTS", "5"), 5),

		TurnstileSecretKey: getEnv("TURNSTILE_SECRET_KEY", TurnstileAlwaysPasses),
		TurnstileVerifyURL: getEnv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),

		LogRetention: parseDuration(getEnv("LOG_RETENTION", "720h"), 720*time.Hour),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		AppEnv:      getEnv("APP_ENV", "development"),
	}
}

// Turnstile dummy secret keys published by Cloudflare for testing.
const (
	TurnstileAlwaysPasses = "1x0000000000000000000000000000000AA"
	TurnstileAlwaysBlocks = "2x0000000000000000000000000000000AA"
	TurnstileAlreadySpent = "3x0000000000000000000000000000000AA"
)

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
