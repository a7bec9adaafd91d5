package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/digital-land/submit/internal/datasets"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Logging       LoggingConfig      `yaml:"logging"`
	RequestAPI    RequestAPIConfig   `yaml:"request_api"`
	Redis         RedisConfig        `yaml:"redis"`
	Session       SessionConfig      `yaml:"session"`
	Uploads       UploadsConfig      `yaml:"uploads"`
	Email         EmailConfig        `yaml:"email"`
	Pagination    PaginationConfig   `yaml:"pagination"`
	Datasets      []datasets.Dataset `yaml:"datasets"`
	IssueMessages string             `yaml:"issue_messages"` // empty uses the embedded catalog
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                   int      `yaml:"port"`
	Host                   string   `yaml:"host"`
	ReadTimeoutSeconds     int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ReadTimeout returns the read timeout as a duration
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the write timeout as a duration
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget as a duration
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// LoggingConfig holds log level and PII handling
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// RequestAPIConfig holds the async check backend settings
type RequestAPIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c RequestAPIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig holds the session store connection
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig holds session cookie settings
type SessionConfig struct {
	CookieName    string `yaml:"cookie_name"`
	TTLMinutes    int    `yaml:"ttl_minutes"`
	SecureCookies bool   `yaml:"secure_cookies"`
}

// TTL returns the sliding session lifetime
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// UploadsConfig holds S3 staging for uploaded files
type UploadsConfig struct {
	S3Bucket     string `yaml:"s3_bucket"`
	S3Region     string `yaml:"s3_region"`
	Prefix       string `yaml:"prefix"`
	Endpoint     string `yaml:"endpoint"` // optional, for S3-compatible local stacks
	MaxSizeBytes int64  `yaml:"max_size_bytes"`
	AWSProfile   string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c UploadsConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// EmailConfig holds AWS SES settings for submission notifications
type EmailConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	From           string `yaml:"from"`
	TeamAddress    string `yaml:"team_address"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c EmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PaginationConfig holds result table paging
type PaginationConfig struct {
	PageSize int `yaml:"page_size"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 60
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.RequestAPI.TimeoutSeconds == 0 {
		cfg.RequestAPI.TimeoutSeconds = 30
	}
	if cfg.RequestAPI.MaxRetries == 0 {
		cfg.RequestAPI.MaxRetries = 3
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "sid"
	}
	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = 60
	}
	if cfg.Uploads.S3Region == "" {
		cfg.Uploads.S3Region = "eu-west-2"
	}
	if cfg.Uploads.Prefix == "" {
		cfg.Uploads.Prefix = "uploads"
	}
	if cfg.Uploads.MaxSizeBytes == 0 {
		cfg.Uploads.MaxSizeBytes = 100 * 1000 * 1000
	}
	if cfg.Email.Region == "" {
		cfg.Email.Region = cfg.Uploads.S3Region
	}
	if cfg.Email.TimeoutSeconds == 0 {
		cfg.Email.TimeoutSeconds = 30
	}
	if cfg.Pagination.PageSize == 0 {
		cfg.Pagination.PageSize = 50
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REQUEST_API_BASE_URL"); v != "" {
		cfg.RequestAPI.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("UPLOADS_S3_BUCKET"); v != "" {
		cfg.Uploads.S3Bucket = v
	}
	if v := os.Getenv("UPLOADS_S3_REGION"); v != "" {
		cfg.Uploads.S3Region = v
	}
	if v := os.Getenv("UPLOADS_S3_ENDPOINT"); v != "" {
		cfg.Uploads.Endpoint = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Email.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Email.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Email.Region = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		cfg.Email.From = v
	}
	if v := os.Getenv("EMAIL_TEAM_ADDRESS"); v != "" {
		cfg.Email.TeamAddress = v
	}

	return cfg, nil
}
