package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.OTPTTL != 15*time.Minute {
		t.Fatalf("OTPTTL = %v, want %v", cfg.OTPTTL, 15*time.Minute)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Fatalf("OTPMaxAttempts = %d, want 5", cfg.OTPMaxAttempts)
	}
	if cfg.StorageDriver != "postgres" {
		t.Fatalf("StorageDriver = %q, want postgres", cfg.StorageDriver)
	}
	if !cfg.CookieSecure {
		t.Fatal("CookieSecure = false, want true")
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("OTP_TTL", "soon")
	t.Setenv("OTP_MAX_ATTEMPTS", "-2")
	cfg := Load()
	if cfg.OTPTTL != 15*time.Minute {
		t.Fatalf("OTPTTL = %v, want %v", cfg.OTPTTL, 15*time.Minute)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Fatalf("OTPMaxAttempts = %d, want 5", cfg.OTPMaxAttempts)
	}
}

func TestDSN(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "challenge_test")
	want := "host=localhost user=postgres password=secret dbname=challenge_test port=5432 sslmode=disable TimeZone=UTC"
	if got := Load().DSN(); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("CHALLENGE_API_URL", "https://challenge.example.org")
	t.Setenv("CHALLENGE_HTTP_TIMEOUT", "3s")
	cfg, err := LoadClientConfig()
	if err != nil {
		t.Fatalf("LoadClientConfig() error = %v", err)
	}
	if cfg.BaseURL != "https://challenge.example.org" {
		t.Fatalf("BaseURL = %q, want %q", cfg.BaseURL, "https://challenge.example.org")
	}
	if cfg.HTTPTimeout != 3*time.Second {
		t.Fatalf("HTTPTimeout = %v, want %v", cfg.HTTPTimeout, 3*time.Second)
	}
}

func TestLoadClientConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("CHALLENGE_HTTP_TIMEOUT", "whenever")
	if _, err := LoadClientConfig(); err == nil {
		t.Fatal("LoadClientConfig() error = nil, want parse error")
	}
}
