package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	TicketSource TicketSourceConfig
	Directory    DirectoryConfig
	Fetch        FetchConfig
	Orchestrator OrchestratorConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// TicketSourceConfig holds the service-desk API connection values.
type TicketSourceConfig struct {
	BaseURL               string
	Token                 string
	TerminationCategoryID string
	PageSize              int
	TimeoutSeconds        int
	MaxConcurrent         int
	RequestsPerSecond     float64
	MaxRetries            int
}

// DirectoryConfig holds the identity-provider connection values.
type DirectoryConfig struct {
	BaseURL           string
	Token             string
	OrgDomain         string
	TimeoutSeconds    int
	MaxConcurrent     int
	RequestsPerSecond float64
}

// FetchConfig bounds the concurrent ticket fetch.
type FetchConfig struct {
	MaxPages    int
	Concurrency int
}

// OrchestratorConfig controls run execution.
type OrchestratorConfig struct {
	PhasePlanPath       string
	RunConcurrency      int
	PhaseTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level   string
	Service string
}

// AuthConfig defines portal authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorPasswordHash  string
	BcryptCost            int
}

// NotificationConfig holds notification endpoints.
type NotificationConfig struct {
	WebhookURL     string
	RedisStream    string
	TimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "lifecycle-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		TicketSource: TicketSourceConfig{
			BaseURL:               getEnv("TICKET_SOURCE_BASE_URL", ""),
			Token:                 os.Getenv("TICKET_SOURCE_TOKEN"),
			TerminationCategoryID: getEnv("TICKET_SOURCE_TERMINATION_SUBCATEGORY_ID", ""),
			PageSize:              getEnvAsInt("TICKET_SOURCE_PAGE_SIZE", 100),
			TimeoutSeconds:        getEnvAsInt("TICKET_SOURCE_TIMEOUT_SECONDS", 30),
			MaxConcurrent:         getEnvAsInt("TICKET_SOURCE_MAX_CONCURRENT", 15),
			RequestsPerSecond:     getEnvAsFloat("TICKET_SOURCE_REQUESTS_PER_SECOND", 10),
			MaxRetries:            getEnvAsInt("FETCH_MAX_RETRIES", 5),
		},
		Directory: DirectoryConfig{
			BaseURL:           getEnv("DIRECTORY_BASE_URL", ""),
			Token:             os.Getenv("DIRECTORY_TOKEN"),
			OrgDomain:         getEnv("ORG_EMAIL_DOMAIN", "example.com"),
			TimeoutSeconds:    getEnvAsInt("DIRECTORY_TIMEOUT_SECONDS", 20),
			MaxConcurrent:     getEnvAsInt("DIRECTORY_MAX_CONCURRENT", 10),
			RequestsPerSecond: getEnvAsFloat("DIRECTORY_REQUESTS_PER_SECOND", 10),
		},
		Fetch: FetchConfig{
			MaxPages:    getEnvAsInt("FETCH_MAX_PAGES", 60),
			Concurrency: getEnvAsInt("FETCH_CONCURRENCY", 15),
		},
		Orchestrator: OrchestratorConfig{
			PhasePlanPath:       getEnv("PHASE_PLAN_PATH", ""),
			RunConcurrency:      getEnvAsInt("RUN_CONCURRENCY", 4),
			PhaseTimeoutSeconds: getEnvAsInt("PHASE_TIMEOUT_SECONDS", 120),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Service: getEnv("APP_NAME", "lifecycle-service"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			OperatorPasswordHash:  os.Getenv("AUTH_OPERATOR_PASSWORD_HASH"),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			RedisStream:    getEnv("NOTIFY_REDIS_STREAM", "termination-outcomes"),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 10),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the ticket source call timeout.
func (t TicketSourceConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Timeout returns the directory call timeout.
func (d DirectoryConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// PhaseTimeout returns the per-phase call timeout.
func (o OrchestratorConfig) PhaseTimeout() time.Duration {
	return time.Duration(o.PhaseTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
