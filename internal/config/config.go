package config

import (
	"fmt"
	"time"

	"github.com/RishiKendai/contestguard/internal/configs/env"
)

// Config holds all configuration for the application
type Config struct {
	// Contest
	ContestSlug     string
	LeetCodeBaseURL string
	ExcludedRegion  string

	// Acquisition
	PageLimit         int
	Workers           int
	MaxRetries        int
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	MaxCodeBytes      int

	// Detection
	DetectionThreshold float64
	MinTokens          int
	KGramSize          int
	WindowSize         int
	DetectWorkers      int

	// Files
	ArtifactsDir string
	ResultsDir   string

	// MongoDB
	MongoURI    string
	MongoDBName string

	// Redis
	RedisHost               string
	RedisPassword           string
	RedisStreamKey          string
	RedisConsumerGroup      string
	RedisDeadLetterKey      string
	StreamRetentionDuration time.Duration

	// JWT
	JWTSecret string
	JWTIssuer string

	// Rate Limiting
	RateLimitRPS float64

	// Runs
	MaxConcurrentRuns int
	RunTimeout        time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Contest
	cfg.ContestSlug = env.GetEnv("CONTEST_SLUG", "")
	cfg.LeetCodeBaseURL = env.GetEnv("LEETCODE_BASE_URL", "https://leetcode.com")
	cfg.ExcludedRegion = env.GetEnv("EXCLUDED_REGION", "CN")

	// Acquisition
	cfg.PageLimit = env.GetEnvInt("PAGE_LIMIT", 10)
	cfg.Workers = env.GetEnvInt("WORKERS", 10)
	cfg.MaxRetries = env.GetEnvInt("MAX_RETRIES", 50)
	cfg.RequestTimeout = env.GetEnvSeconds("REQUEST_TIMEOUT_SECONDS", 15*time.Second)
	cfg.RequestsPerSecond = env.GetEnvFloat("REQUESTS_PER_SECOND", 0)
	cfg.MaxCodeBytes = env.GetEnvInt("MAX_CODE_BYTES", 64*1024)

	// Detection
	cfg.DetectionThreshold = env.GetEnvFloat("DETECTION_THRESHOLD", 0.33)
	cfg.MinTokens = env.GetEnvInt("MIN_TOKENS", 30)
	cfg.KGramSize = env.GetEnvInt("KGRAM_SIZE", 25)
	cfg.WindowSize = env.GetEnvInt("WINDOW_SIZE", 6)
	cfg.DetectWorkers = env.GetEnvInt("DETECT_WORKERS", 0)

	// Files
	cfg.ArtifactsDir = env.GetEnv("ARTIFACTS_DIR", "data/submissions")
	cfg.ResultsDir = env.GetEnv("RESULTS_DIR", "data/results")

	// MongoDB
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "leetcode_contests")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisStreamKey = env.GetEnv("REDIS_STREAM_KEY", "contest:runs")
	cfg.RedisConsumerGroup = env.GetEnv("REDIS_CONSUMER_GROUP", "contest:runners")
	cfg.RedisDeadLetterKey = env.GetEnv("REDIS_DEAD_LETTER_KEY", "contest:runs:dlq")
	retentionHours := env.GetEnvInt("STREAM_RETENTION_DURATION", 24)
	cfg.StreamRetentionDuration = time.Duration(retentionHours) * time.Hour

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")
	cfg.JWTIssuer = env.GetEnv("JWT_ISSUER", "contestguard")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 10.0)

	// Runs
	cfg.MaxConcurrentRuns = env.GetEnvInt("MAX_CONCURRENT_RUNS", 2)
	timeoutMinutes := env.GetEnvInt("RUN_TIMEOUT_MINUTES", 120)
	cfg.RunTimeout = time.Duration(timeoutMinutes) * time.Minute

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8080")
	cfg.MetricsPort = env.GetEnv("METRICS_PORT", "2112")

	return cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.LeetCodeBaseURL == "" {
		return fmt.Errorf("LEETCODE_BASE_URL is required")
	}
	if c.PageLimit <= 0 {
		return fmt.Errorf("PAGE_LIMIT must be greater than 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be greater than 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be greater than 0")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("REQUESTS_PER_SECOND must not be negative")
	}
	if c.MaxCodeBytes <= 0 {
		return fmt.Errorf("MAX_CODE_BYTES must be greater than 0")
	}
	if c.DetectionThreshold < 0 || c.DetectionThreshold >= 1 {
		return fmt.Errorf("DETECTION_THRESHOLD must be in [0, 1)")
	}
	if c.MinTokens < 0 {
		return fmt.Errorf("MIN_TOKENS must not be negative")
	}
	if c.KGramSize <= 0 {
		return fmt.Errorf("KGRAM_SIZE must be greater than 0")
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("WINDOW_SIZE must be greater than 0")
	}
	if c.DetectWorkers < 0 {
		return fmt.Errorf("DETECT_WORKERS must not be negative")
	}
	if c.ArtifactsDir == "" {
		return fmt.Errorf("ARTIFACTS_DIR is required")
	}
	if c.MongoURI == "" && c.ResultsDir == "" {
		return fmt.Errorf("either MONGO_URI or RESULTS_DIR is required")
	}
	return nil
}

// ValidateServer checks the extra settings needed by the HTTP API.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be greater than 0")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("RUN_TIMEOUT_MINUTES must be greater than 0")
	}
	if c.RedisHost != "" && c.StreamRetentionDuration <= 0 {
		return fmt.Errorf("STREAM_RETENTION_DURATION must be greater than 0")
	}
	return nil
}
