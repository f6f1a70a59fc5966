package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Blob       BlobConfig
	OCR        OCRConfig
	LLM        LLMConfig
	Pipeline   PipelineConfig
	Validation ValidationConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// BlobConfig holds document blob store configuration
type BlobConfig struct {
	Bucket    string
	LocalDir  string // when set, use the local-dir store instead of S3
	AWSRegion string
}

// OCRConfig holds text-recognition provider configuration
type OCRConfig struct {
	Provider     string // "textract"
	PollInterval time.Duration
	Timeout      time.Duration
	RatePerSec   float64
}

// LLMConfig holds field-extraction provider configuration
type LLMConfig struct {
	Provider    string // "gemini"
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// PipelineConfig holds orchestrator policy knobs
type PipelineConfig struct {
	Workers      int
	QueueSize    int
	RetryBackoff time.Duration
}

// ValidationConfig holds the advisory-validation policy constants
type ValidationConfig struct {
	Tolerance     string // decimal, currency units
	MaxPastWindow time.Duration
	AllowFuture   bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Blob: BlobConfig{
			Bucket:    getEnv("BLOB_BUCKET", "freight-invoices"),
			LocalDir:  getEnv("BLOB_LOCAL_DIR", ""),
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
		},
		OCR: OCRConfig{
			Provider:     getEnv("OCR_PROVIDER", "textract"),
			PollInterval: getEnvAsDuration("OCR_POLL_INTERVAL", 2*time.Second),
			Timeout:      getEnvAsDuration("OCR_TIMEOUT", 5*time.Minute),
			RatePerSec:   getEnvAsFloat64("OCR_RATE_PER_SEC", 2),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "gemini"),
			Model:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			APIKey:      getEnv("GEMINI_API_KEY", ""),
			Temperature: getEnvAsFloat32("GEMINI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("GEMINI_TIMEOUT", 90*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:      int(getEnvAsInt32("PIPELINE_WORKERS", 4)),
			QueueSize:    int(getEnvAsInt32("PIPELINE_QUEUE_SIZE", 256)),
			RetryBackoff: getEnvAsDuration("PIPELINE_RETRY_BACKOFF", 5*time.Second),
		},
		Validation: ValidationConfig{
			Tolerance:     getEnv("VALIDATION_TOLERANCE", "0.01"),
			MaxPastWindow: getEnvAsDuration("VALIDATION_MAX_PAST_WINDOW", 365*24*time.Hour),
			AllowFuture:   getEnvAsBool("VALIDATION_ALLOW_FUTURE", false),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "GEMINI_API_KEY is required", ErrInvalidInput)
	}
	if c.Blob.LocalDir == "" && c.Blob.Bucket == "" {
		return NewAppError("CONFIG_ERROR", "BLOB_BUCKET or BLOB_LOCAL_DIR is required", ErrInvalidInput)
	}
	return nil
}
