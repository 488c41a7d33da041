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
	Env         string
	ListenAddr  string
	DatabaseURL string

	AuditWorkers      int
	AuditStepInterval time.Duration
	PollInterval      time.Duration

	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3UseSSL      bool
	UploadsBucket string
	UploadURLTTL  time.Duration

	// PublicBaseURL is how clients reach this server; in-memory upload URLs are built from it.
	PublicBaseURL string

	// Client side.
	APIURL    string
	StateFile string
}

// LoadDotEnv reads .env.local then .env; variables already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads the environment. Without DATABASE_URL the server runs on in-memory adapters;
// the returned error says so and callers decide whether that is fatal.
func Load() (Config, error) {
	cfg := Config{
		Env:               getenv("APP_ENV", "development"),
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AuditWorkers:      getenvInt("AUDIT_WORKERS", 2),
		AuditStepInterval: getenvDuration("AUDIT_STEP_INTERVAL", 500*time.Millisecond),
		PollInterval:      getenvDuration("POLL_INTERVAL", 2*time.Second),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:          getenvBool("S3_USE_SSL", false),
		UploadsBucket:     getenv("UPLOADS_BUCKET", "auditflow-documents"),
		UploadURLTTL:      getenvDuration("UPLOAD_URL_TTL", 15*time.Minute),
		APIURL:            getenv("AUDITFLOW_API_URL", "http://localhost:8080"),
		StateFile:         os.Getenv("AUDITFLOW_STATE_FILE"),
	}
	cfg.PublicBaseURL = getenv("PUBLIC_BASE_URL", "http://localhost"+portOf(cfg.ListenAddr))
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	return cfg, nil
}

// UseS3 reports whether an S3-compatible endpoint is configured.
func (c Config) UseS3() bool { return c.S3Endpoint != "" }

func portOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ""
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.Atoi(v); err == nil {
			return out
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseBool(v); err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if out, err := time.ParseDuration(v); err == nil && out > 0 {
			return out
		}
	}
	return def
}
