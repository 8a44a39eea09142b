package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT (shared across all counters)
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Admin
	AdminEmails      string
	AdminUserIDs     string
	AdminToken       string
	AllowAdminSignup bool

	// Server
	Port        string
	CORSOrigins string

	// App registry
	AppsConfigPath string

	// Deposits
	DepositStore    string
	CodeMaxAttempts int

	// Image host (S3 compatible)
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UploadExpiry  time.Duration

	// Change events
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	AppEnv    string
	SentryDSN string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "nitip_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		AdminEmails:      getEnv("ADMIN_EMAILS", ""),
		AdminUserIDs:     getEnv("ADMIN_USER_IDS", ""),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),
		AllowAdminSignup: parseBool(getEnv("ALLOW_ADMIN_SIGNUP", "false")),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		AppsConfigPath: getEnv("APPS_CONFIG_PATH", "apps.json"),

		DepositStore:    getEnv("DEPOSIT_STORE", "postgres"),
		CodeMaxAttempts: parseInt(getEnv("CODE_MAX_ATTEMPTS", "8"), 8),

		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3Bucket:        getEnv("S3_BUCKET", "nitip-photos"),
		S3PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
		S3UploadExpiry:  parseDuration(getEnv("S3_UPLOAD_EXPIRY", "15m"), 15*time.Minute),

		KafkaBrokers: parseCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "nitip.deposits"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", ""),

		AppEnv:    getEnv("APP_ENV", "development"),
		SentryDSN: getEnv("SENTRY_DSN", ""),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// ImageHostEnabled reports whether photo uploads can be signed.
func (c *Config) ImageHostEnabled() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3Bucket != ""
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

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
