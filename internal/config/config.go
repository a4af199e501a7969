package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	Environment string

	// QuizCacheTTL of zero disables the Redis read-through cache.
	QuizCacheTTL time.Duration

	Scheduler  SchedulerConfig
	Enrollment EnrollmentConfig
	Auth       AuthConfig
	Events     EventConfig
}

type SchedulerConfig struct {
	Enabled      bool
	PollInterval time.Duration
}

// EnrollmentConfig selects how student enrollment is checked: "redis" reads
// course rosters kept as Redis sets, "open" admits every student.
type EnrollmentConfig struct {
	Backend   string
	KeyPrefix string
}

// AuthConfig selects how callers are identified: "header" trusts the
// X-User-ID and X-User-Role headers set by a gateway, "casdoor" verifies a
// Casdoor bearer token.
type AuthConfig struct {
	Mode string

	CasdoorEndpoint         string
	CasdoorClientID         string
	CasdoorClientSecret     string
	CasdoorCertificate      string
	CasdoorOrganizationName string
	CasdoorApplicationName  string
}

// LoadConfig reads the environment. A .env file is loaded when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return &Config{
		Port:         getEnv("PORT", "8080"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		Environment:  getEnv("ENVIRONMENT", "development"),
		QuizCacheTTL: getEnvDuration("QUIZ_CACHE_TTL", 5*time.Minute),
		Scheduler: SchedulerConfig{
			Enabled:      getEnvBool("SCHEDULER_ENABLED", true),
			PollInterval: getEnvDuration("SCHEDULER_POLL_INTERVAL", 30*time.Second),
		},
		Enrollment: EnrollmentConfig{
			Backend:   strings.ToLower(getEnv("ENROLLMENT_BACKEND", "open")),
			KeyPrefix: getEnv("ENROLLMENT_KEY_PREFIX", "enrollment:course:"),
		},
		Auth: AuthConfig{
			Mode:                    strings.ToLower(getEnv("AUTH_MODE", "header")),
			CasdoorEndpoint:         getEnv("CASDOOR_ENDPOINT", ""),
			CasdoorClientID:         getEnv("CASDOOR_CLIENT_ID", ""),
			CasdoorClientSecret:     getEnv("CASDOOR_CLIENT_SECRET", ""),
			CasdoorCertificate:      getEnv("CASDOOR_CERTIFICATE", ""),
			CasdoorOrganizationName: getEnv("CASDOOR_ORGANIZATION", ""),
			CasdoorApplicationName:  getEnv("CASDOOR_APPLICATION", ""),
		},
		Events: EventConfig{
			Enabled:           getEnvBool("EVENTS_ENABLED", true),
			Publisher:         strings.ToLower(getEnv("EVENT_PUBLISHER", "mock")),
			KafkaBrokers:      getEnv("KAFKA_BROKERS", "localhost:9092"),
			NotificationTopic: getEnv("NOTIFICATION_TOPIC", "notifications"),
			ClientID:          getEnv("KAFKA_CLIENT_ID", "quiz-engine"),
			MaxRetries:        getEnvInt("KAFKA_MAX_RETRIES", 3),
		},
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
