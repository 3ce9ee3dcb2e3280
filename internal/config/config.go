// Package config loads the movieform server configuration from CLI flags, environment
// variables and an optional .env file, validates it, and supplies defaults.
//
// Flags override environment variables. Variables already set in the environment win
// over the .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kuitang/movieform/internal/ratelimit"
	"github.com/kuitang/movieform/internal/s3client"
	"github.com/kuitang/movieform/internal/session"
)

const (
	defaultS3Region = "us-east-1"
	defaultEnvFile  = ".env"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr      string
	BaseURL         string
	TemplatesDir    string
	StaticDir       string
	ShutdownTimeout time.Duration

	// Seed catalog: empty, a local JSON path, or s3://bucket/key
	SeedSource string

	// Sessions and event throttling
	SessionConfig   session.Config
	RateLimitConfig ratelimit.Config

	// S3-compatible storage for an s3:// seed
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSUsePathStyle    bool   // AWS_S3_USE_PATH_STYLE
}

// Flags holds the values parsed from the command line.
type Flags struct {
	Addr    string
	Seed    string
	EnvFile string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses --addr, --seed and --env-file from args (without the program name).
func ParseFlags(args []string, output io.Writer) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("movieform", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&f.Addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR)")
	fs.StringVar(&f.Seed, "seed", "", "Seed catalog: JSON file path or s3://bucket/key (overrides SEED_SOURCE)")
	fs.StringVar(&f.EnvFile, "env-file", defaultEnvFile, "Dotenv file to load if present")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// LoadConfig loads configuration from the environment (after applying the .env file named
// by flags) and the flag values.
func LoadConfig(flags Flags) (*Config, error) {
	if err := loadEnvFile(flags.EnvFile); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":8080")
	if flags.Addr != "" {
		cfg.ListenAddr = flags.Addr
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BASE_URL")), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.TemplatesDir = getEnvOrDefault("TEMPLATES_DIR", "./web/templates")
	cfg.StaticDir = getEnvOrDefault("STATIC_DIR", "./web/static")
	cfg.ShutdownTimeout = parseDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second)

	// Seed
	cfg.SeedSource = strings.TrimSpace(os.Getenv("SEED_SOURCE"))
	if flags.Seed != "" {
		cfg.SeedSource = flags.Seed
	}

	// Sessions
	cfg.SessionConfig = session.Config{
		TTL:             parseDurationOrDefault("SESSION_TTL", session.DefaultConfig.TTL),
		MaxSessions:     parseIntOrDefault("MAX_SESSIONS", session.DefaultConfig.MaxSessions),
		CleanupInterval: parseDurationOrDefault("SESSION_CLEANUP_INTERVAL", session.DefaultConfig.CleanupInterval),
	}

	// Rate limiting
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
	}

	// S3
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSUsePathStyle = parseBoolOrDefault("AWS_S3_USE_PATH_STYLE", cfg.AWSEndpointS3 != "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.ListenAddr == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		errs = append(errs, "BASE_URL must start with http:// or https://")
	}

	if c.SessionConfig.TTL <= 0 {
		errs = append(errs, "SESSION_TTL must be positive")
	}
	if c.SessionConfig.MaxSessions <= 0 {
		errs = append(errs, "MAX_SESSIONS must be positive")
	}

	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}

	if strings.HasPrefix(c.SeedSource, "s3://") {
		if _, ok := s3client.ParseURI(c.SeedSource); !ok {
			errs = append(errs, "SEED_SOURCE must look like s3://bucket/key")
		}
		if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
			errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

// SeedFromS3 reports whether the seed catalog is read from object storage.
func (c *Config) SeedFromS3() bool {
	_, ok := s3client.ParseURI(c.SeedSource)
	return ok
}

// S3Config returns the S3 client settings for the seed bucket.
func (c *Config) S3Config() (s3client.Config, bool) {
	loc, ok := s3client.ParseURI(c.SeedSource)
	if !ok {
		return s3client.Config{}, false
	}
	return s3client.Config{
		Endpoint:        c.AWSEndpointS3,
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		BucketName:      loc.Bucket,
		UsePathStyle:    c.AWSUsePathStyle,
	}, true
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "movieform server starting...")

	switch {
	case c.SeedSource == "":
		fmt.Fprintln(w, "  Seed:     none (empty catalog)")
	case c.SeedFromS3():
		endpoint := c.AWSEndpointS3
		if endpoint == "" {
			endpoint = "AWS default"
		}
		fmt.Fprintf(w, "  Seed:     %s (endpoint: %s)\n", c.SeedSource, endpoint)
	default:
		fmt.Fprintf(w, "  Seed:     %s\n", c.SeedSource)
	}

	fmt.Fprintf(w, "  Sessions: ttl=%s max=%d\n", c.SessionConfig.TTL, c.SessionConfig.MaxSessions)
	fmt.Fprintf(w, "  Limits:   %.0f events/s, burst %d\n", c.RateLimitConfig.RPS, c.RateLimitConfig.Burst)
	fmt.Fprintf(w, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintf(w, "  Base:     %s\n", c.BaseURL)
	fmt.Fprintln(w, "")
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	// godotenv.Load never overrides variables that are already set.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
