package config

import (
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default("test-secret")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	rules := cfg.RuleSet()
	if rules == nil {
		t.Fatal("RuleSet returned nil")
	}
	if _, ok := rules.VariantFor("Separering"); !ok {
		t.Fatal("default config missing Separering rule")
	}
}

func TestFromYAMLRejectsUnknownVariant(t *testing.T) {
	yml := strings.Replace(GenerateDefault("s"), "single-flag", "triple-flag", 1)
	if _, err := FromYAML([]byte(yml)); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestValidateRequiresSecret(t *testing.T) {
	cfg := Default("x")
	cfg.Auth.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing jwt secret")
	}
}

func TestValidateRejectsBadPasswordDigest(t *testing.T) {
	cfg := Default("x")
	cfg.Auth.Users = map[string]User{"anna": {Name: "Anna", Role: "admin", PasswordSHA256: "abc"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short digest")
	}
}

func TestTokenTTLDefault(t *testing.T) {
	var cfg Config
	if got := cfg.TokenTTLMinutes(); got != 1440 {
		t.Fatalf("ttl = %d, want 1440", got)
	}
}
