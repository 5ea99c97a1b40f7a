package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	DatabaseURL     string
	StateDir        string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	GCSBucket       string
	GCSPrefix       string
	SQSQueueURL     string
	MaxUploadBytes  int64

	AdminUsername  string
	AdminPassword  string
	PasswordHasher string
	SessionSecret  string
	SessionTTL     time.Duration

	ExtractionInitialDelay time.Duration
	ExtractionMinDelay     time.Duration
	ExtractionMaxDelay     time.Duration
	ExtractionTick         time.Duration
	ExtractionPendingStage bool
	ExtractionPendingDelay time.Duration
	RunScheduler           bool

	SearchLatency time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAMLDefaults(path); err != nil {
			log.Printf("config file %s ignored: %v", path, err)
		}
	}

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := getEnv("DATABASE_URL", "")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is recommended in production; falling back to STATE_DIR persistence")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		DatabaseURL:     dbURL,
		StateDir:        getEnv("STATE_DIR", "./data/state"),
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data/files"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		GCSBucket:       getEnv("GCS_BUCKET", ""),
		GCSPrefix:       getEnv("GCS_PREFIX", ""),
		SQSQueueURL:     getEnv("SQS_QUEUE_URL", ""),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_BYTES", 50<<20)),

		AdminUsername:  getEnv("ADMIN_USERNAME", "01737654555"),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
		PasswordHasher: strings.ToLower(getEnv("PASSWORD_HASHER", "sha256")),
		SessionSecret:  getEnv("SESSION_SECRET", ""),
		SessionTTL:     getEnvDuration("SESSION_TTL", 12*time.Hour),

		ExtractionInitialDelay: getEnvDuration("EXTRACTION_INITIAL_DELAY", 1500*time.Millisecond),
		ExtractionMinDelay:     getEnvDuration("EXTRACTION_MIN_DELAY", 3*time.Second),
		ExtractionMaxDelay:     getEnvDuration("EXTRACTION_MAX_DELAY", 5*time.Second),
		ExtractionTick:         getEnvDuration("EXTRACTION_TICK", 250*time.Millisecond),
		ExtractionPendingStage: getEnvBool("EXTRACTION_PENDING_STAGE", false),
		ExtractionPendingDelay: getEnvDuration("EXTRACTION_PENDING_DELAY", 0),
		RunScheduler:           getEnvBool("RUN_SCHEDULER", true),

		SearchLatency: getEnvDuration("SEARCH_LATENCY", time.Second),
	}
}

// IsDevLike reports whether env is a local development environment.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config %s invalid bool: %v", key, err)
		return def
	}
	return val
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
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "gcs":
		return "gcs"
	default:
		return "local"
	}
}
