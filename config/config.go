package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const mb = 1024 * 1024

type Config struct {
	ServiceName   string
	AppPort       string
	AppMode       string
	LogFile       string
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	JWTSecret     string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CORSOrigins   []string

	Storage    StorageConfig
	Attachment AttachmentConfig
	RateLimit  RateLimitConfig
	Tracing    TracingConfig
}

// StorageConfig describes the S3-compatible bucket holding layout files.
type StorageConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// AttachmentConfig is the upload policy applied to every layout file.
type AttachmentConfig struct {
	MaxBytes        int64
	Extension       string
	ContentTypes    []string
	UploadURLTTL    time.Duration
	DownloadURLTTL  time.Duration
	VerifyOnConfirm bool
}

// TracingConfig controls OpenTelemetry span export. An empty endpoint with
// tracing enabled prints spans to stdout.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type RateLimitConfig struct {
	UploadLimit  int
	UploadWindow time.Duration
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		ServiceName:   getEnv("SERVICE_NAME", "uniforme-api"),
		AppPort:       getEnv("APP_PORT", "8080"),
		AppMode:       getEnv("APP_MODE", "debug"),
		LogFile:       getEnv("LOG_FILE", ""),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "uniforme"),
		DBPort:        getEnv("DB_PORT", "5432"),
		JWTSecret:     getEnv("JWT_SECRET", "change-me"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CORSOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		Storage:       loadStorageConfig(),
		Attachment:    loadAttachmentConfig(),
		RateLimit: RateLimitConfig{
			UploadLimit:  getEnvAsInt("UPLOAD_RATE_LIMIT", 30),
			UploadWindow: time.Duration(getEnvAsInt("UPLOAD_RATE_WINDOW_SEC", 60)) * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLER_RATIO", 0.1),
		},
	}
}

func loadStorageConfig() StorageConfig {
	endpoint := getEnv("S3_ENDPOINT", "")
	if endpoint == "" {
		if account := getEnv("R2_ACCOUNT_ID", ""); account != "" {
			endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", account)
		}
	}
	return StorageConfig{
		Endpoint:  endpoint,
		Region:    getEnv("S3_REGION", "auto"),
		Bucket:    getEnv("S3_BUCKET", getEnv("R2_BUCKET", "")),
		AccessKey: getEnv("S3_ACCESS_KEY", getEnv("R2_ACCESS_KEY_ID", "")),
		SecretKey: getEnv("S3_SECRET_KEY", getEnv("R2_SECRET_ACCESS_KEY", "")),
	}
}

func loadAttachmentConfig() AttachmentConfig {
	return AttachmentConfig{
		MaxBytes:        int64(getEnvAsInt("CDR_MAX_MB", 250)) * mb,
		Extension:       getEnv("ATTACHMENT_EXTENSION", ".cdr"),
		ContentTypes:    getEnvAsList("ATTACHMENT_CONTENT_TYPES", []string{"application/x-coreldraw", "image/x-coreldraw", "application/octet-stream"}),
		UploadURLTTL:    time.Duration(getEnvAsInt("UPLOAD_URL_TTL_SEC", 900)) * time.Second,
		DownloadURLTTL:  time.Duration(getEnvAsInt("DOWNLOAD_URL_TTL_SEC", 300)) * time.Second,
		VerifyOnConfirm: getEnvAsBool("ATTACHMENT_VERIFY_ON_CONFIRM", false),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
