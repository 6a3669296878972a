package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPSTRACK_TOKEN_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TokenIssuer != "opstrack" {
		t.Fatalf("unexpected issuer: %s", cfg.TokenIssuer)
	}
	if cfg.TokenTTL != 12*time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
	if cfg.AuditBatchSize != 50 {
		t.Fatalf("unexpected batch size: %d", cfg.AuditBatchSize)
	}
	if cfg.RevocationCacheSize != 4096 {
		t.Fatalf("unexpected revocation cache size: %d", cfg.RevocationCacheSize)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("OPSTRACK_TOKEN_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing secret to fail")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OPSTRACK_TOKEN_SECRET", "test-secret")
	t.Setenv("OPSTRACK_TOKEN_TTL", "30m")
	t.Setenv("OPSTRACK_AUDIT_BATCH_SIZE", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
	if cfg.AuditBatchSize != 10 {
		t.Fatalf("unexpected batch size: %d", cfg.AuditBatchSize)
	}
}
