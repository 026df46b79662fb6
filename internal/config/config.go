package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	MongoDB  MongoDBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Billing  BillingConfig
	Momo     MomoConfig
	Firebase FirebaseConfig
	S3       S3Config
	OTEL     OTELConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
}

// JWTConfig holds token verification configuration
type JWTConfig struct {
	Secret string
}

// BillingConfig holds the lifecycle engine parameters. Everything here is
// tunable per deployment; none of it is hard-coded in the engine.
type BillingConfig struct {
	TrialReminderDays  int           // notify trials ending within N days
	ExpiryReminderDays int           // notify active subs ending within M days
	RenewalWindowDays  int           // auto-renew subs ending within K days
	FailureThreshold   int           // failed payments before past_due
	BatchWorkers       int           // bounded parallelism per batch job
	GatewayTimeout     time.Duration // per-charge timeout
	NotifyTimeout      time.Duration // per-notification timeout
	JobLeaseTTL        time.Duration // overlap guard for batch jobs
}

// MomoConfig holds mobile-money gateway credentials
type MomoConfig struct {
	APIUser     string
	APIKey      string
	BaseURL     string
	Currency    string
	CallbackURL string
}

// FirebaseConfig holds Firebase Admin SDK configuration (used for FCM)
type FirebaseConfig struct {
	ProjectID   string
	PrivateKey  string // Base64 encoded
	ClientEmail string
}

// S3Config holds receipt-archive object storage configuration
type S3Config struct {
	Endpoint string
	Region   string
	Bucket   string
}

// OTELConfig holds OpenTelemetry export configuration
type OTELConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	InstanceID     string
	Token          string
}

// Load reads configuration from environment variables
// It attempts to load from .env file first, then falls back to system env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "storekeeper"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Billing: BillingConfig{
			TrialReminderDays:  getEnvAsInt("BILLING_TRIAL_REMINDER_DAYS", 3),
			ExpiryReminderDays: getEnvAsInt("BILLING_EXPIRY_REMINDER_DAYS", 7),
			RenewalWindowDays:  getEnvAsInt("BILLING_RENEWAL_WINDOW_DAYS", 1),
			FailureThreshold:   getEnvAsInt("BILLING_FAILURE_THRESHOLD", 3),
			BatchWorkers:       getEnvAsInt("BILLING_BATCH_WORKERS", 8),
			GatewayTimeout:     getEnvAsDuration("BILLING_GATEWAY_TIMEOUT", 30*time.Second),
			NotifyTimeout:      getEnvAsDuration("BILLING_NOTIFY_TIMEOUT", 10*time.Second),
			JobLeaseTTL:        getEnvAsDuration("BILLING_JOB_LEASE_TTL", 15*time.Minute),
		},
		Momo: MomoConfig{
			APIUser:     getEnv("MOMO_API_USER", ""),
			APIKey:      getEnv("MOMO_API_KEY", ""),
			BaseURL:     getEnv("MOMO_BASE_URL", "https://sandbox.momodeveloper.mtn.com"),
			Currency:    getEnv("MOMO_CURRENCY", "XAF"),
			CallbackURL: getEnv("PAYMENT_NOTIFY_URL", ""),
		},
		Firebase: FirebaseConfig{
			ProjectID:   getEnv("FIREBASE_PROJECT_ID", ""),
			PrivateKey:  getEnv("FIREBASE_PRIVATE_KEY", ""),
			ClientEmail: getEnv("FIREBASE_CLIENT_EMAIL", ""),
		},
		S3: S3Config{
			Endpoint: getEnv("S3_ENDPOINT", ""),
			Region:   getEnv("S3_REGION", "us-east-1"),
			Bucket:   getEnv("S3_BUCKET", "storekeeper-receipts"),
		},
		OTEL: OTELConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "storekeeper-api"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			InstanceID:     getEnv("OTEL_INSTANCE_ID", ""),
			Token:          getEnv("OTEL_TOKEN", ""),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Billing.FailureThreshold < 1 {
		return fmt.Errorf("BILLING_FAILURE_THRESHOLD must be at least 1")
	}
	if c.Billing.BatchWorkers < 1 {
		return fmt.Errorf("BILLING_BATCH_WORKERS must be at least 1")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as time.Duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
