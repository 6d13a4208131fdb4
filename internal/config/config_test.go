package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestLoad_LibraryDefaults(t *testing.T) {
	os.Unsetenv("LOAN_DAYS")
	os.Unsetenv("REISSUE_DAYS")
	os.Unsetenv("COVER_MATCH_PERCENT")

	cfg := Load()

	if cfg.Library.LoanDays != 14 {
		t.Errorf("expected loan days 14, got %d", cfg.Library.LoanDays)
	}
	if cfg.Library.ReissueDays != 7 {
		t.Errorf("expected reissue days 7, got %d", cfg.Library.ReissueDays)
	}
	if cfg.Library.CoverMatchPercent != 70 {
		t.Errorf("expected cover match percent 70, got %d", cfg.Library.CoverMatchPercent)
	}
	if cfg.Library.LoanPeriod() != 14*24*time.Hour {
		t.Errorf("unexpected loan period %v", cfg.Library.LoanPeriod())
	}
}

func TestLoad_LibraryOverrides(t *testing.T) {
	t.Setenv("LOAN_DAYS", "21")
	t.Setenv("REISSUE_DAYS", "invalid")

	cfg := Load()

	if cfg.Library.LoanDays != 21 {
		t.Errorf("expected loan days 21, got %d", cfg.Library.LoanDays)
	}
	// Should fall back to the embedded default
	if cfg.Library.ReissueDays != 7 {
		t.Errorf("expected reissue days 7 for invalid input, got %d", cfg.Library.ReissueDays)
	}
}

func TestLoad_FaceAuthDefaults(t *testing.T) {
	os.Unsetenv("FACE_THRESHOLD")
	os.Unsetenv("FACE_MAX_ATTEMPTS")
	os.Unsetenv("FACE_LOCKOUT_WINDOW")

	cfg := Load()

	if cfg.FaceAuth.Threshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %f", cfg.FaceAuth.Threshold)
	}
	if cfg.FaceAuth.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.FaceAuth.MaxAttempts)
	}
	if cfg.FaceAuth.LockoutWindow != 15*time.Minute {
		t.Errorf("expected 15m window, got %v", cfg.FaceAuth.LockoutWindow)
	}
}

func TestLoad_FaceAuthOverrides(t *testing.T) {
	t.Setenv("FACE_THRESHOLD", "0.85")
	t.Setenv("FACE_LOCKOUT_WINDOW", "5m")

	cfg := Load()

	if cfg.FaceAuth.Threshold != 0.85 {
		t.Errorf("expected threshold 0.85, got %f", cfg.FaceAuth.Threshold)
	}
	if cfg.FaceAuth.LockoutWindow != 5*time.Minute {
		t.Errorf("expected 5m window, got %v", cfg.FaceAuth.LockoutWindow)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " http://a.example , ,http://b.example")

	cfg := Load()

	if len(cfg.Web.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Web.AllowedOrigins)
	}
	if cfg.Web.AllowedOrigins[0] != "http://a.example" || cfg.Web.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("unexpected origins %v", cfg.Web.AllowedOrigins)
	}
}

func TestSMTPConfig_Enabled(t *testing.T) {
	if (SMTPConfig{}).Enabled() {
		t.Error("expected empty SMTP config to be disabled")
	}
	if !(SMTPConfig{Host: "smtp.example.com"}).Enabled() {
		t.Error("expected SMTP config with host to be enabled")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: "postgres://localhost/library"},
			FaceAuth: FaceAuthConfig{Threshold: 0.7},
			Library:  LibraryConfig{LoanDays: 14, ReissueDays: 7, CoverMatchPercent: 70},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "threshold above one", mutate: func(c *Config) { c.FaceAuth.Threshold = 1.5 }, expectErr: true},
		{name: "negative threshold", mutate: func(c *Config) { c.FaceAuth.Threshold = -0.1 }, expectErr: true},
		{name: "zero loan days", mutate: func(c *Config) { c.Library.LoanDays = 0 }, expectErr: true},
		{name: "zero reissue days", mutate: func(c *Config) { c.Library.ReissueDays = 0 }, expectErr: true},
		{name: "cover percent over 100", mutate: func(c *Config) { c.Library.CoverMatchPercent = 101 }, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.expectErr {
				t.Errorf("Validate() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestRequireDatabase(t *testing.T) {
	cfg := &Config{
		FaceAuth: FaceAuthConfig{Threshold: 0.7},
		Library:  LibraryConfig{LoanDays: 14, ReissueDays: 7, CoverMatchPercent: 70},
	}

	if err := cfg.RequireDatabase(); !errors.Is(err, ErrDatabaseURLMissing) {
		t.Errorf("expected ErrDatabaseURLMissing, got %v", err)
	}

	cfg.Database.URL = "postgres://localhost/library"
	if err := cfg.RequireDatabase(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestListenAddr(t *testing.T) {
	c := WebConfig{Host: "127.0.0.1", Port: 8080}
	if got := c.ListenAddr(); got != "127.0.0.1:8080" {
		t.Errorf("ListenAddr() = %q", got)
	}
}
