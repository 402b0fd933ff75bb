package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingStorage is returned when the object store cannot be configured.
var ErrMissingStorage = errors.New("configure storage variables")

// Config stores the application configuration.
type Config struct {
	// Object storage (S3 compatible)
	S3Bucket     string
	S3Prefix     string // root under which staged segments live
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string // host[:port], scheme stripped
	S3Region     string
	S3UseSSL     bool
	PresignTTL   time.Duration
	StoreTimeout time.Duration // per-call timeout for object store requests

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	StatusBackend string // "object" or "redis"

	HTTPAddr string

	LogLevel string
	LogFile  string

	// Ingestion
	FFmpegPath       string
	YtDlpPath        string
	ChannelURL       string
	Keywords         []string
	IngestInputDir   string
	IngestOutputDir  string
	SegmentLengthMs  int
	IngestPrefix     string
	IngestLockPath   string
	DownloadTimeout  time.Duration
	DiscoveryTimeout time.Duration
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// splitList splits a comma separated list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeEndpoint strips the URL scheme from AWS_ENDPOINT_URL_S3, which
// boto-style configs carry but minio-go does not accept. An https scheme
// forces SSL on.
func normalizeEndpoint(raw string, useSSL bool) (string, bool) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(raw, "https://"), "/"), true
	case strings.HasPrefix(raw, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(raw, "http://"), "/"), useSSL
	}
	return strings.TrimSuffix(raw, "/"), useSSL
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	endpoint, useSSL := normalizeEndpoint(os.Getenv("AWS_ENDPOINT_URL_S3"), getEnvBool("S3_USE_SSL", true))

	return &Config{
		S3Bucket:     os.Getenv("S3_BUCKET"),
		S3Prefix:     getEnv("S3_PREFIX", "audios"),
		S3AccessKey:  os.Getenv("AWS_ACCESS_KEY_ID"),
		S3SecretKey:  os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3Endpoint:   endpoint,
		S3Region:     getEnv("S3_REGION", ""),
		S3UseSSL:     useSSL,
		PresignTTL:   getEnvDuration("PRESIGN_TTL", time.Hour),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 30*time.Second),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		StatusBackend: getEnv("STATUS_BACKEND", "object"),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
		YtDlpPath:        getEnv("YTDLP_PATH", "yt-dlp"),
		ChannelURL:       getEnv("INGEST_CHANNEL_URL", "https://www.youtube.com/@livenewsafrica/"),
		Keywords:         splitList(getEnv("INGEST_KEYWORDS", "sid pa")),
		IngestInputDir:   getEnv("INGEST_INPUT_DIR", "audios_sidpa"),
		IngestOutputDir:  getEnv("INGEST_OUTPUT_DIR", "audios_segments"),
		SegmentLengthMs:  getEnvInt("INGEST_SEGMENT_MS", 30*1000),
		IngestPrefix:     getEnv("INGEST_PREFIX", "audios_to_tests"),
		IngestLockPath:   getEnv("INGEST_LOCK", "moorecollect-ingest.lock"),
		DownloadTimeout:  getEnvDuration("INGEST_DOWNLOAD_TIMEOUT", 30*time.Minute),
		DiscoveryTimeout: getEnvDuration("INGEST_DISCOVERY_TIMEOUT", 5*time.Minute),
	}
}

// ValidateStorage reports which storage variables are missing. Without them
// no component can operate, so callers treat the error as fatal.
func (c *Config) ValidateStorage() error {
	var missing []string
	if c.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if c.S3AccessKey == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if c.S3SecretKey == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	if c.S3Endpoint == "" {
		missing = append(missing, "AWS_ENDPOINT_URL_S3")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMissingStorage, strings.Join(missing, ", "))
	}
	return nil
}

// RedisAddr returns host:port for the redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
