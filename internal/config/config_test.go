package config

import (
	"strings"
	"testing"
)

const validKey = "0000000000000000000000000000000000000000000000000000000000000000"

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/chartlock")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("expected development mode by default")
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("unexpected pool defaults: %d/%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func TestValidate_ProductionRequiresAuth(t *testing.T) {
	cfg := &Config{Env: "production", PHIEncryptionKey: validKey}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for production without auth config")
	}
	if !strings.Contains(err.Error(), "AUTH_ISSUER") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_ProductionRequiresEncryptionKey(t *testing.T) {
	cfg := &Config{Env: "production", AuthIssuer: "https://issuer.example.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for production without PHI_ENCRYPTION_KEY")
	}
}

func TestValidate_RejectsBadKey(t *testing.T) {
	for name, key := range map[string]string{
		"non-hex":   strings.Repeat("zz", 32),
		"too-short": "abcd",
	} {
		cfg := &Config{Env: "development", PHIEncryptionKey: key}
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestValidate_DevelopmentAllowsEmpty(t *testing.T) {
	cfg := &Config{Env: "development"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEncryptionKey_Decodes(t *testing.T) {
	cfg := &Config{PHIEncryptionKey: validKey}
	key, err := cfg.EncryptionKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key))
	}
}

func TestEncryptionKey_EmptyIsNil(t *testing.T) {
	cfg := &Config{}
	key, err := cfg.EncryptionKey()
	if err != nil || key != nil {
		t.Errorf("expected nil key without error, got %v, %v", key, err)
	}
}
