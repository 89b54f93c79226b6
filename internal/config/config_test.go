package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080, PublicBaseURL: "https://wrap.example.com"},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "wrapdesk"},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret", StaffPassword: "staff"},
		Twilio: TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+13015550000", ValidateSignature: true},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, key := range []string{"APP_ENV", "PUBLIC_BASE_URL", "DB_HOST", "TWILIO_AUTH_TOKEN", "DASHBOARD_PASSWORD"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in error: %v", key, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "wrapdesk"
	c.Auth.JWTAudience = "dashboard"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_ProductionRequiresSignatureValidation(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "wrapdesk"
	c.Auth.JWTAudience = "dashboard"
	c.Twilio.ValidateSignature = false
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "TWILIO_VALIDATE_SIGNATURE") {
		t.Fatalf("expected signature validation error, got %v", err)
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Calls.RingTimeout != 12*time.Second {
		t.Fatalf("expected 12s ring timeout, got %s", c.Calls.RingTimeout)
	}
	if c.Inbox.MessageWindow != 500 {
		t.Fatalf("expected message window 500, got %d", c.Inbox.MessageWindow)
	}
	if c.Calls.StaleRingingAfter != 10*time.Minute {
		t.Fatalf("expected 10m stale threshold, got %s", c.Calls.StaleRingingAfter)
	}
	if c.Twilio.APIBase != "https://api.twilio.com" {
		t.Fatalf("unexpected api base %q", c.Twilio.APIBase)
	}
	if c.Location().String() != "America/New_York" {
		t.Fatalf("unexpected location %s", c.Location())
	}
}

func TestValidate_StaleThresholdMustExceedRingTimeout(t *testing.T) {
	c := validConfig()
	c.Calls.RingTimeout = time.Minute
	c.Calls.StaleRingingAfter = 30 * time.Second
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for stale threshold below ring timeout")
	}
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	body := strings.Join([]string{
		"APP_ENV=dev",
		"APP_PORT=9090",
		"PUBLIC_BASE_URL=https://wrap.example.com/",
		"DB_HOST=db",
		"DB_PORT=5432",
		"DB_USER=wrap",
		"DB_NAME=wrap",
		"REDIS_HOST=redis",
		"REDIS_PORT=6379",
		"JWT_SECRET=s",
		"DASHBOARD_PASSWORD=staff",
		"TWILIO_ACCOUNT_SID=AC1",
		"TWILIO_AUTH_TOKEN=tok",
		"TWILIO_FROM_NUMBER=+13015550000",
		"RING_TIMEOUT=15s",
		"MESSAGE_WINDOW=200",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	// Explicit environment wins over the file.
	t.Setenv("APP_PORT", "7070")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Port != 7070 {
		t.Fatalf("expected env override, got %d", c.App.Port)
	}
	if c.App.PublicBaseURL != "https://wrap.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.App.PublicBaseURL)
	}
	if c.Calls.RingTimeout != 15*time.Second || c.Inbox.MessageWindow != 200 {
		t.Fatalf("unexpected call/inbox config: %+v %+v", c.Calls, c.Inbox)
	}
}

func TestLoad_ReportsBadValues(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("RING_TIMEOUT", "soon")
	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "APP_PORT") || !strings.Contains(err.Error(), "RING_TIMEOUT") {
		t.Fatalf("expected both parse errors, got %v", err)
	}
}
