package config

import (
	"log"
	"os"
	"time"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode

	Port string

	GCPProjectID string

	StorageBackend string // "memory" or "firestore"
	BlobBackend    string // "memory" or "s3"

	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Endpoint  string // set for MinIO / local stacks

	JWTSecret string

	// StoreOpTimeout bounds every single store operation.
	StoreOpTimeout time.Duration
	RetryBackoff   time.Duration

	SweepEnabled   bool
	SweepInterval  time.Duration
	SweepTimeout   time.Duration
	SweepThreshold time.Duration
	SweepBatchSize int
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid duration in %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

// Load reads all env vars and builds the config
func Load() *Config {
	modeStr := getEnv("VAULT_MODE", "local")
	var mode Mode
	switch modeStr {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	defaultStorage := "memory"
	defaultBlob := "memory"
	if mode == ModeGCP {
		defaultStorage = "firestore"
		defaultBlob = "s3"
	}

	cfg := &Config{
		Mode: mode,

		Port: getEnv("VAULT_PORT", "8080"),

		GCPProjectID: getEnv("VAULT_GCP_PROJECT", ""),

		StorageBackend: getEnv("VAULT_STORAGE_BACKEND", defaultStorage),
		BlobBackend:    getEnv("VAULT_BLOB_BACKEND", defaultBlob),

		S3Region:    getEnv("VAULT_S3_REGION", "us-east-1"),
		S3AccessKey: getEnv("VAULT_S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("VAULT_S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("VAULT_S3_BUCKET", "varsivault"),
		S3Endpoint:  getEnv("VAULT_S3_ENDPOINT", ""),

		JWTSecret: getEnv("VAULT_JWT_SECRET", "dev-secret"),

		StoreOpTimeout: getDurationEnv("VAULT_STORE_OP_TIMEOUT", 10*time.Second),
		RetryBackoff:   getDurationEnv("VAULT_RETRY_BACKOFF", 100*time.Millisecond),

		SweepEnabled:   getBoolEnv("VAULT_SWEEP_ENABLED", true),
		SweepInterval:  getDurationEnv("VAULT_SWEEP_INTERVAL", time.Hour),
		SweepTimeout:   getDurationEnv("VAULT_SWEEP_TIMEOUT", 5*time.Minute),
		SweepThreshold: getDurationEnv("VAULT_SWEEP_THRESHOLD", 24*time.Hour),
		SweepBatchSize: 100,
	}

	// Minimal validation in GCP mode
	if cfg.Mode == ModeGCP && cfg.StorageBackend == "firestore" && cfg.GCPProjectID == "" {
		log.Fatal("VAULT_GCP_PROJECT must be set in gcp mode")
	}

	return cfg
}
