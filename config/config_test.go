package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("AWS_ENDPOINT_URL_S3", "")
	t.Setenv("INGEST_KEYWORDS", "")

	cfg := FromEnv()
	if cfg.SegmentLengthMs != 30000 {
		t.Fatalf("segment length = %d, want 30000", cfg.SegmentLengthMs)
	}
	if cfg.PresignTTL != time.Hour {
		t.Fatalf("presign ttl = %v, want 1h", cfg.PresignTTL)
	}
	if len(cfg.Keywords) != 0 {
		t.Fatalf("expected no keywords from blank env, got %v", cfg.Keywords)
	}
}

func TestFromEnvParsesValues(t *testing.T) {
	t.Setenv("AWS_ENDPOINT_URL_S3", "http://localhost:9000/")
	t.Setenv("S3_USE_SSL", "false")
	t.Setenv("INGEST_KEYWORDS", "sid pa, , Moore ")
	t.Setenv("INGEST_SEGMENT_MS", "15000")
	t.Setenv("PRESIGN_TTL", "10m")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := FromEnv()
	if cfg.S3Endpoint != "localhost:9000" || cfg.S3UseSSL {
		t.Fatalf("endpoint = %q ssl=%v", cfg.S3Endpoint, cfg.S3UseSSL)
	}
	if got := strings.Join(cfg.Keywords, "|"); got != "sid pa|Moore" {
		t.Fatalf("keywords = %q", got)
	}
	if cfg.SegmentLengthMs != 15000 {
		t.Fatalf("segment length = %d", cfg.SegmentLengthMs)
	}
	if cfg.PresignTTL != 10*time.Minute {
		t.Fatalf("presign ttl = %v", cfg.PresignTTL)
	}
	if cfg.RedisDB != 0 {
		t.Fatalf("invalid REDIS_DB should fall back to 0, got %d", cfg.RedisDB)
	}
}

func TestHTTPSEndpointForcesSSL(t *testing.T) {
	t.Setenv("AWS_ENDPOINT_URL_S3", "https://s3.example.org")
	t.Setenv("S3_USE_SSL", "false")

	cfg := FromEnv()
	if cfg.S3Endpoint != "s3.example.org" || !cfg.S3UseSSL {
		t.Fatalf("endpoint = %q ssl=%v", cfg.S3Endpoint, cfg.S3UseSSL)
	}
}

func TestValidateStorage(t *testing.T) {
	cfg := &Config{S3Bucket: "moore-collection", S3Endpoint: "localhost:9000"}
	err := cfg.ValidateStorage()
	if !errors.Is(err, ErrMissingStorage) {
		t.Fatalf("expected ErrMissingStorage, got %v", err)
	}
	if !strings.Contains(err.Error(), "AWS_ACCESS_KEY_ID") || !strings.Contains(err.Error(), "AWS_SECRET_ACCESS_KEY") {
		t.Fatalf("error should name missing variables: %v", err)
	}

	cfg.S3AccessKey = "key"
	cfg.S3SecretKey = "secret"
	if err := cfg.ValidateStorage(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
