package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Env                 string        `validate:"oneof=dev local staging production"`
	Port                string        `validate:"required"`
	CORSAllowOrigin     []string
	DatabaseURL         string        `validate:"required_if=Env production"`
	ObjectStoreType     string        `validate:"oneof=local s3"`
	LocalStoreDir       string        `validate:"required_if=ObjectStoreType local"`
	AWSRegion           string
	S3Bucket            string        `validate:"required_if=ObjectStoreType s3"`
	S3Prefix            string
	SSEKMSKeyID         string
	OpenAIAPIKey        string
	LLMModel            string
	LLMTimeout          time.Duration `validate:"gt=0"`
	SchedulerType       string        `validate:"oneof=timer sqs"`
	SQSQueueURL         string        `validate:"required_if=SchedulerType sqs"`
	ControlAPIToken     string
	MaxRateLimitRetries int           `validate:"gte=0"`
	LeaseStaleAfter     time.Duration `validate:"gt=0"`
	DocumentCacheSize   int           `validate:"gte=0"`
	WorkerConcurrency   int           `validate:"gte=1"`
	SQSVisibility       time.Duration `validate:"gte=0"`
	ShutdownTimeout     time.Duration `validate:"gt=0"`
}

var defaults = map[string]any{
	"ENV":                    "dev",
	"PORT":                   "8080",
	"CORS_ALLOW_ORIGINS":     "http://localhost:5173",
	"OBJECT_STORE":           "local",
	"LOCAL_STORE_DIR":        "./data",
	"LLM_MODEL":              "gpt-4o-mini",
	"OPENAI_TIMEOUT_SECONDS": 220,
	"MAX_RATE_LIMIT_RETRIES": 0,
	"LEASE_STALE_AFTER":      "15m",
	"DOCUMENT_CACHE_SIZE":    256,
	"WORKER_CONCURRENCY":     4,
	"SQS_VISIBILITY_TIMEOUT": "20m",
	"SHUTDOWN_TIMEOUT":       "30s",
}

// Load reads configuration from the environment, after best-effort .env files, and validates it.
func Load() (Config, error) {
	loadEnvFiles(".env", "cmd/.env")

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	env := normalizeEnv(v.GetString("ENV"))
	queueURL := strings.TrimSpace(v.GetString("SQS_QUEUE_URL"))

	cfg := Config{
		Env:                 env,
		Port:                v.GetString("PORT"),
		CORSAllowOrigin:     splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),
		DatabaseURL:         strings.TrimSpace(v.GetString("DATABASE_URL")),
		ObjectStoreType:     normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:       v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:           v.GetString("AWS_REGION"),
		S3Bucket:            v.GetString("S3_BUCKET"),
		S3Prefix:            v.GetString("S3_PREFIX"),
		SSEKMSKeyID:         v.GetString("SSE_KMS_KEY_ID"),
		OpenAIAPIKey:        strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		LLMModel:            strings.TrimSpace(v.GetString("LLM_MODEL")),
		LLMTimeout:          time.Duration(v.GetInt("OPENAI_TIMEOUT_SECONDS")) * time.Second,
		SchedulerType:       normalizeSchedulerType(v.GetString("SCHEDULER"), queueURL),
		SQSQueueURL:         queueURL,
		ControlAPIToken:     strings.TrimSpace(v.GetString("CONTROL_API_TOKEN")),
		MaxRateLimitRetries: v.GetInt("MAX_RATE_LIMIT_RETRIES"),
		LeaseStaleAfter:     v.GetDuration("LEASE_STALE_AFTER"),
		DocumentCacheSize:   v.GetInt("DOCUMENT_CACHE_SIZE"),
		WorkerConcurrency:   v.GetInt("WORKER_CONCURRENCY"),
		SQSVisibility:       v.GetDuration("SQS_VISIBILITY_TIMEOUT"),
		ShutdownTimeout:     v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints on a Config.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// IsDevLike reports whether the environment tolerates in-memory fallbacks.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		// Existing process env wins over file values.
		_ = godotenv.Load(path)
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeSchedulerType(raw, queueURL string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "timer":
		return "timer"
	}
	if queueURL != "" {
		return "sqs"
	}
	return "timer"
}
