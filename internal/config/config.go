package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	Timezone      string

	// Google Workspace collaborators (calendar = availability, sheet = ledger)
	GoogleCredentialsFile string
	CalendarID            string
	SpreadsheetID         string
	LedgerSheetRange      string

	// Availability policy
	SlotGranularity    time.Duration
	MaxCandidates      int
	BusinessDayStart   int // hour, local time
	BusinessDayEnd     int // hour, local time
	AppointmentTypes   map[string]time.Duration
	BusyCacheTTL       time.Duration

	// Redis busy-interval cache (optional; empty addr disables it)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS / SQS ledger reconciliation spool
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	LedgerSpoolQueueURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Timezone:    getEnv("PHARMACY_TIMEZONE", "America/Toronto"),

		GoogleCredentialsFile: getEnv("SERVICE_ACCOUNT_FILE", ""),
		CalendarID:            getEnv("CALENDAR_ID", ""),
		SpreadsheetID:         getEnv("SPREADSHEET_ID", ""),
		LedgerSheetRange:      getEnv("LEDGER_SHEET_RANGE", "Bookings!A2:K"),

		SlotGranularity:  getEnvAsDuration("SLOT_GRANULARITY", 15*time.Minute),
		MaxCandidates:    getEnvAsInt("MAX_CANDIDATES", 3),
		BusinessDayStart: getEnvAsInt("BUSINESS_DAY_START_HOUR", 9),
		BusinessDayEnd:   getEnvAsInt("BUSINESS_DAY_END_HOUR", 18),
		AppointmentTypes: parseAppointmentTypes(getEnv(
			"APPOINTMENT_TYPES",
			"consultation=30m,flu-shot=15m,vaccination=15m,medication-review=30m",
		)),
		BusyCacheTTL: getEnvAsDuration("BUSY_CACHE_TTL", 30*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		LedgerSpoolQueueURL: getEnv("LEDGER_SPOOL_QUEUE_URL", ""),
	}
}

// parseAppointmentTypes decodes "name=duration,name=duration" pairs.
// Malformed entries are skipped rather than failing startup.
func parseAppointmentTypes(raw string) map[string]time.Duration {
	types := make(map[string]time.Duration)
	for _, pair := range strings.Split(raw, ",") {
		name, dur, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(dur))
		if err != nil || d <= 0 {
			continue
		}
		types[strings.ToLower(strings.TrimSpace(name))] = d
	}
	return types
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
