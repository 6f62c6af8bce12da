package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string
	LogFile  string // optional rotating log file, console only when empty

	// Database. DatabaseURL wins over the discrete fields when set.
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Auth
	JWTSecret string

	// Expo push gateway
	ExpoPushURL     string
	ExpoAccessToken string
	PushBatchSize   int
	PushMaxAttempts int
	PushRetryDelay  time.Duration
	PushTimeout     time.Duration
	DispatchTimeout time.Duration // upper bound for one background dispatch

	RateLimitPerMinute int
	CORSAllowedOrigins []string

	// Tracing
	OTELEnabled     bool
	OTELEndpoint    string
	OTELServiceName string
	OTELSampleRatio float64

	// Activity event ingest
	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string
	SQSRegion    string
	SQSQueueURL  string

	// Operator alerts
	AWSRegion     string
	AlertTopicARN string
	AlertEmailTo  string
	SESFromEmail  string

	// AI title generation (any OpenAI compatible endpoint)
	AIEnabled     bool
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Stale token sweeper
	TokenStaleDays     int
	TokenSweepInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "postgres",
		DBName:    "fellowship",
		DBSSLMode: "disable",

		RedisHost: "localhost",
		RedisPort: 6379,

		ExpoPushURL:     "https://exp.host/--/api/v2/push/send",
		PushBatchSize:   100,
		PushMaxAttempts: 3,
		PushRetryDelay:  time.Second,
		PushTimeout:     30 * time.Second,

		RateLimitPerMinute: 100,
		CORSAllowedOrigins: []string{"*"},

		OTELEndpoint:    "localhost:4318",
		OTELServiceName: "fellowship-api",
		OTELSampleRatio: 1.0,

		KafkaTopic:   "fellowship.activity",
		KafkaGroupID: "fellowship-notify",

		AWSRegion:    "us-east-1",
		SESFromEmail: "alerts@fellowship.local",

		OpenAIBaseURL: "https://api.openai.com/v1",
		OpenAIModel:   "gpt-4o-mini",

		TokenStaleDays:     270,
		TokenSweepInterval: 6 * time.Hour,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	cfg.LogFile = os.Getenv("LOG_FILE")

	// Database config
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if err := intEnv("DB_PORT", &cfg.DBPort); err != nil {
		return nil, err
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if err := intEnv("REDIS_PORT", &cfg.RedisPort); err != nil {
		return nil, err
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if err := intEnv("REDIS_DB", &cfg.RedisDB); err != nil {
		return nil, err
	}

	// Auth
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-only-secret"
	}

	// Push gateway
	if url := os.Getenv("EXPO_PUSH_URL"); url != "" {
		cfg.ExpoPushURL = url
	}

	cfg.ExpoAccessToken = os.Getenv("EXPO_ACCESS_TOKEN")

	if err := intEnv("PUSH_BATCH_SIZE", &cfg.PushBatchSize); err != nil {
		return nil, err
	}
	if cfg.PushBatchSize <= 0 || cfg.PushBatchSize > 100 {
		return nil, fmt.Errorf("invalid PUSH_BATCH_SIZE: must be between 1 and 100, got %d", cfg.PushBatchSize)
	}

	if err := intEnv("PUSH_MAX_ATTEMPTS", &cfg.PushMaxAttempts); err != nil {
		return nil, err
	}

	if err := durationEnv("PUSH_RETRY_DELAY_MS", time.Millisecond, &cfg.PushRetryDelay); err != nil {
		return nil, err
	}

	if err := durationEnv("PUSH_TIMEOUT_SECONDS", time.Second, &cfg.PushTimeout); err != nil {
		return nil, err
	}

	if err := durationEnv("DISPATCH_TIMEOUT_SECONDS", time.Second, &cfg.DispatchTimeout); err != nil {
		return nil, err
	}
	if cfg.DispatchTimeout == 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout(cfg.PushTimeout, cfg.PushRetryDelay, cfg.PushMaxAttempts)
	}

	if err := intEnv("RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute); err != nil {
		return nil, err
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = splitList(origins)
	}

	// Tracing
	if enabled := os.Getenv("OTEL_ENABLED"); enabled != "" {
		b, err := strconv.ParseBool(enabled)
		if err != nil {
			return nil, fmt.Errorf("invalid OTEL_ENABLED: %w", err)
		}
		cfg.OTELEnabled = b
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.OTELEndpoint = endpoint
	}

	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		cfg.OTELServiceName = name
	}

	if ratio := os.Getenv("OTEL_SAMPLE_RATIO"); ratio != "" {
		f, err := strconv.ParseFloat(ratio, 64)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("invalid OTEL_SAMPLE_RATIO: %q", ratio)
		}
		cfg.OTELSampleRatio = f
	}

	// Activity ingest
	cfg.KafkaBrokers = os.Getenv("KAFKA_BROKERS")

	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		cfg.KafkaTopic = topic
	}

	if group := os.Getenv("KAFKA_GROUP_ID"); group != "" {
		cfg.KafkaGroupID = group
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	cfg.SQSQueueURL = os.Getenv("SQS_QUEUE_URL")

	// Alerts
	cfg.AlertTopicARN = os.Getenv("ALERT_TOPIC_ARN")
	cfg.AlertEmailTo = os.Getenv("ALERT_EMAIL_TO")

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	// AI config
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAIAPIKey = key
		cfg.AIEnabled = true
	}

	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		cfg.OpenAIBaseURL = url
	}

	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.OpenAIModel = model
	}

	// Sweeper
	if err := intEnv("TOKEN_STALE_DAYS", &cfg.TokenStaleDays); err != nil {
		return nil, err
	}

	if err := durationEnv("TOKEN_SWEEP_INTERVAL_MINUTES", time.Minute, &cfg.TokenSweepInterval); err != nil {
		return nil, err
	}

	return cfg, nil
}

// dispatchBatchBudget is how many worst-case batches a dispatch may take
// before its deadline.
const dispatchBatchBudget = 4

// DefaultDispatchTimeout covers dispatchBatchBudget batches that each use
// every attempt, time out, and back off attempt × retryDelay in between.
func DefaultDispatchTimeout(pushTimeout, retryDelay time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	perBatch := time.Duration(attempts) * pushTimeout
	for i := 1; i < attempts; i++ {
		perBatch += time.Duration(i) * retryDelay
	}

	return dispatchBatchBudget * perBatch
}

func intEnv(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func durationEnv(name string, unit time.Duration, dst *time.Duration) error {
	var n int
	if err := intEnv(name, &n); err != nil {
		return err
	}
	if n > 0 {
		*dst = time.Duration(n) * unit
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
