package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed library.yaml
var libraryYAML []byte

type Config struct {
	Database DatabaseConfig
	Web      WebConfig
	FaceAuth FaceAuthConfig
	SMTP     SMTPConfig
	Library  LibraryConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	Host           string
	Port           int
	SessionSecret  string
	AllowedOrigins []string // CORS whitelist, comma separated in ALLOWED_ORIGINS
}

type FaceAuthConfig struct {
	Threshold     float64       // similarity a capture must exceed (default 0.7)
	IndexPath     string        // Path to persist the duplicate-enrollment HNSW index (optional)
	CacheSize     int           // Number of stored descriptors kept in memory (default 1024)
	CacheTTL      time.Duration // How long a cached descriptor is trusted (default 30s)
	MaxAttempts   int           // Failed face matches allowed per window (default 5)
	LockoutWindow time.Duration // Window for MaxAttempts (default 15m)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether outgoing mail is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type LibraryConfig struct {
	LoanDays          int `yaml:"loan_days"`
	ReissueDays       int `yaml:"reissue_days"`
	CoverMatchPercent int `yaml:"cover_match_percent"`
}

// LoanPeriod is the time between issue and the first due date.
func (c LibraryConfig) LoanPeriod() time.Duration {
	return time.Duration(c.LoanDays) * 24 * time.Hour
}

// ReissuePeriod is how far a reissue pushes the due date.
func (c LibraryConfig) ReissuePeriod() time.Duration {
	return time.Duration(c.ReissueDays) * 24 * time.Hour
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat is like envInt but keeps any parseable value, range checks happen in Validate.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() *Config {
	var library LibraryConfig
	if err := yaml.Unmarshal(libraryYAML, &library); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded library.yaml: " + err.Error())
	}
	library.LoanDays = envInt("LOAN_DAYS", library.LoanDays)
	library.ReissueDays = envInt("REISSUE_DAYS", library.ReissueDays)
	library.CoverMatchPercent = envInt("COVER_MATCH_PERCENT", library.CoverMatchPercent)

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 5000),
			SessionSecret:  os.Getenv("WEB_SESSION_SECRET"),
			AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		},
		FaceAuth: FaceAuthConfig{
			Threshold:     envFloat("FACE_THRESHOLD", 0.7),
			IndexPath:     os.Getenv("FACE_INDEX_PATH"),
			CacheSize:     envInt("FACE_CACHE_SIZE", 1024),
			CacheTTL:      envDuration("FACE_CACHE_TTL", 30*time.Second),
			MaxAttempts:   envInt("FACE_MAX_ATTEMPTS", 5),
			LockoutWindow: envDuration("FACE_LOCKOUT_WINDOW", 15*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     envInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     envString("SMTP_FROM", "library@localhost"),
		},
		Library: library,
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
	}
}

// ErrDatabaseURLMissing is returned by RequireDatabase when DATABASE_URL is empty.
var ErrDatabaseURLMissing = errors.New("DATABASE_URL environment variable is required")

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	var errs []error
	if t := c.FaceAuth.Threshold; math.IsNaN(t) || t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("FACE_THRESHOLD must be within [0, 1], got %v", t))
	}
	if c.Library.LoanDays <= 0 {
		errs = append(errs, fmt.Errorf("loan_days must be positive, got %d", c.Library.LoanDays))
	}
	if c.Library.ReissueDays <= 0 {
		errs = append(errs, fmt.Errorf("reissue_days must be positive, got %d", c.Library.ReissueDays))
	}
	if p := c.Library.CoverMatchPercent; p <= 0 || p > 100 {
		errs = append(errs, fmt.Errorf("cover_match_percent must be within (0, 100], got %d", p))
	}
	return errors.Join(errs...)
}

// RequireDatabase is Validate plus a check that a database is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return errors.Join(ErrDatabaseURLMissing, c.Validate())
	}
	return c.Validate()
}

// ListenAddr returns host:port for the web server.
func (c WebConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
