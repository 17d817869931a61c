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
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Mailbox      MailboxConfig
	Spam         SpamConfig
	AI           AIConfig
	Storage      StorageConfig
	Ingestion    IngestionConfig
	Sweep        SweepConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	BaseURL               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	RunMigrations    bool
	MigrationsDir    string
	AppName          string
	StatementTimeout time.Duration
	ConnMaxIdleSec   int32
	ConnMaxLifeSec   int32
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
	Env     string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig configures outbound email.
type NotificationConfig struct {
	EmailFrom     string
	EmailFromName string
	ResendAPIKey  string
	TestMode      bool
}

// MailboxConfig points at the IMAP inbox tickets are read from.
type MailboxConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Folder             string
	UseTLS             bool
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// SpamConfig configures the moderation endpoint.
type SpamConfig struct {
	Endpoint   string
	APIKey     string
	Threshold  float64
	Sandbox    bool
	Timeout    time.Duration
	// KeyInQuery also sends the key as ?key=, for endpoints such as Perspective that only accept it there.
	KeyInQuery bool
}

// AIConfig configures the OpenAI-compatible text model.
type AIConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// StorageConfig selects the attachment blob store.
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	LocalDir        string
}

// UseS3 reports whether enough S3 settings are present to use it.
func (s StorageConfig) UseS3() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// IngestionConfig controls the scheduled mailbox run.
type IngestionConfig struct {
	Schedule string
	LockTTL  time.Duration
}

// SweepConfig controls the inactivity sweep.
type SweepConfig struct {
	Enabled       bool
	Schedule      string
	CloseAfter    time.Duration
	EscalateAfter time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-intake"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			BaseURL:               getEnv("APP_BASE_URL", "http://localhost:8080"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:              os.Getenv("POSTGRES_DSN"),
			MaxConns:         maxConns,
			MinConns:         minConns,
			RunMigrations:    runMigrations,
			MigrationsDir:    getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			AppName:          getEnv("APP_NAME", "helpdesk-intake"),
			StatementTimeout: getEnvAsDuration("POSTGRES_STATEMENT_TIMEOUT", 15*time.Second),
			ConnMaxIdleSec:   connMaxIdle,
			ConnMaxLifeSec:   connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Service: getEnv("APP_NAME", "helpdesk-intake"),
			Env:     getEnv("APP_ENV", "development"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			EmailFrom:     getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			EmailFromName: getEnv("NOTIFY_EMAIL_FROM_NAME", "Student Support"),
			ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
			TestMode:      getEnvAsBool("NOTIFY_TEST_MODE", true),
		},
		Mailbox: MailboxConfig{
			Host:               os.Getenv("IMAP_HOST"),
			Port:               getEnvAsInt("IMAP_PORT", 993),
			Username:           os.Getenv("IMAP_USERNAME"),
			Password:           os.Getenv("IMAP_PASSWORD"),
			Folder:             getEnv("IMAP_FOLDER", "INBOX"),
			UseTLS:             getEnvAsBool("IMAP_TLS", true),
			InsecureSkipVerify: getEnvAsBool("IMAP_INSECURE_SKIP_VERIFY", false),
			Timeout:            getEnvAsDuration("IMAP_TIMEOUT", 30*time.Second),
		},
		Spam: SpamConfig{
			Endpoint:   os.Getenv("SPAM_ENDPOINT"),
			APIKey:     os.Getenv("SPAM_API_KEY"),
			Threshold:  getEnvAsFloat("SPAM_THRESHOLD", 0.8),
			Sandbox:    getEnvAsBool("SPAM_SANDBOX", false),
			Timeout:    getEnvAsDuration("SPAM_TIMEOUT", 5*time.Second),
			KeyInQuery: getEnvAsBool("SPAM_KEY_IN_QUERY", false),
		},
		AI: AIConfig{
			Endpoint: getEnv("AI_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:   os.Getenv("AI_API_KEY"),
			Model:    getEnv("AI_MODEL", "gpt-4o-mini"),
			Timeout:  getEnvAsDuration("AI_TIMEOUT", 15*time.Second),
			CacheTTL: getEnvAsDuration("AI_CACHE_TTL", 24*time.Hour),
		},
		Storage: StorageConfig{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "auto"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			LocalDir:        getEnv("STORAGE_LOCAL_DIR", "data"),
		},
		Ingestion: IngestionConfig{
			Schedule: getEnv("INGEST_SCHEDULE", "@every 5m"),
			LockTTL:  getEnvAsDuration("INGEST_LOCK_TTL", 10*time.Minute),
		},
		Sweep: SweepConfig{
			Enabled:       getEnvAsBool("SWEEP_ENABLED", false),
			Schedule:      getEnv("SWEEP_SCHEDULE", "0 2 * * *"),
			CloseAfter:    getEnvAsDuration("SWEEP_CLOSE_AFTER", 7*24*time.Hour),
			EscalateAfter: getEnvAsDuration("SWEEP_ESCALATE_AFTER", 6*24*time.Hour),
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

// Addr returns the IMAP host:port.
func (m MailboxConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
