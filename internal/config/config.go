package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Storage configuration
	Storage StorageConfig

	// Transcode configuration
	Transcode TranscodeConfig

	// NATS configuration
	NATS NATSConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	HTTPPort     int
	Environment  string
	ServiceName  string
	LogLevel     string
	ShutdownTime time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// StorageConfig holds artifact storage configuration. Mode selects whether
// locally written files are already in their serving location ("direct")
// or must be pushed to a remote object store ("indirect").
type StorageConfig struct {
	Mode      string // direct, indirect
	LocalPath string
	Backend   string // minio, s3
	MinIO     MinIOConfig
	S3        S3Config
}

// MinIOConfig holds MinIO upload backend configuration
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

// S3Config holds AWS S3 upload backend configuration
type S3Config struct {
	Bucket string
	Region string
	Prefix string
}

// TranscodeConfig holds conversion coordinator configuration
type TranscodeConfig struct {
	// VerboseProcessOutput streams the transcoder's stdout/stderr into
	// the log line by line.
	VerboseProcessOutput bool
	// ProcessTimeout bounds a single transcoder run. Zero means no
	// timeout, matching the historical behavior.
	ProcessTimeout time.Duration
}

// NATSConfig holds NATS configuration. An empty URL disables publishing.
type NATSConfig struct {
	URL           string
	Stream        string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			HTTPPort:     getEnvAsInt("HTTP_PORT", 8080),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			ShutdownTime: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "shoal"),
			Password:     getEnv("DB_PASSWORD", "shoal"),
			Database:     getEnv("DB_NAME", "shoal"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Storage: StorageConfig{
			Mode:      getEnv("STORAGE_MODE", "direct"),
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "/var/shoal/media"),
			Backend:   getEnv("STORAGE_BACKEND", "minio"),
			MinIO: MinIOConfig{
				Endpoint:        getEnv("MINIO_ENDPOINT", ""),
				AccessKeyID:     getEnv("MINIO_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("MINIO_SECRET_ACCESS_KEY", ""),
				Bucket:          getEnv("MINIO_BUCKET", "shoal-media"),
				UseSSL:          getEnvAsBool("MINIO_USE_SSL", true),
			},
			S3: S3Config{
				Bucket: getEnv("S3_BUCKET", "shoal-media"),
				Region: getEnv("S3_REGION", "us-east-1"),
				Prefix: getEnv("S3_PREFIX", ""),
			},
		},
		Transcode: TranscodeConfig{
			VerboseProcessOutput: getEnvAsBool("TRANSCODE_VERBOSE", false),
			ProcessTimeout:       getEnvAsDuration("TRANSCODE_PROCESS_TIMEOUT", 0),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			Stream:        getEnv("NATS_STREAM", "SHOAL_EVENTS"),
			MaxReconnect:  getEnvAsInt("NATS_MAX_RECONNECT", 60),
			ReconnectWait: getEnvAsDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
	}

	if cfg.Storage.Mode != "direct" && cfg.Storage.Mode != "indirect" {
		return nil, fmt.Errorf("invalid STORAGE_MODE %q", cfg.Storage.Mode)
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return defaultValue
}
