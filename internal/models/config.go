package models

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Messaging MessagingConfig `json:"messaging"`
	Email     EmailConfig     `json:"email"`
	RateLimit RateLimitConfig `json:"rateLimit"`
	Reminders RemindersConfig `json:"reminders"`
	Tracing   TracingConfig   `json:"tracing"`
	Retry     RetryConfig     `json:"retry"`
	LogLevel  string          `json:"log_level"`
}

// ServerConfig holds HTTP server related configurations
type ServerConfig struct {
	Port               int    `json:"port"`
	ReadTimeoutSec     int    `json:"readTimeoutSec"`
	WriteTimeoutSec    int    `json:"writeTimeoutSec"`
	IdleTimeoutSec     int    `json:"idleTimeoutSec"`
	WebhookSecret      string `json:"webhook_secret"`
	RequestsPerMinute  int    `json:"requestsPerMinute"`
}

// DatabaseConfig holds durable store related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// RedisConfig holds the shared counter backend configuration.
// An empty Addr means no shared backend; counters fall back to process
// memory and the limiter still operates.
type RedisConfig struct {
	Addr string `json:"addr"`
	DB   int    `json:"db"`
}

// MessagingConfig holds the numbered-message provider configuration.
// SMS and WhatsApp share this transport.
type MessagingConfig struct {
	APIBaseURL     string `json:"api_base_url"`
	FromNumber     string `json:"from_number"`
	TimeoutSec     int    `json:"timeoutSec"`
	DefaultCountry string `json:"defaultCountryCode"`
}

// EmailConfig holds the email provider configuration
type EmailConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
	TimeoutSec  int    `json:"timeoutSec"`
}

// RateLimitConfig holds per-user send throttling configuration
type RateLimitConfig struct {
	SendLimit     int `json:"sendLimit"`
	SendWindowSec int `json:"sendWindowSec"`
}

// RemindersConfig holds schedule engine configurations
type RemindersConfig struct {
	IntervalMinutes       int `json:"intervalMinutes"`
	DedupHours            int `json:"dedupHours"`
	DefaultEscalationDays int `json:"defaultEscalationDays"`
	QueueDrainSec         int `json:"queueDrainSec"`
}

// TracingConfig holds OpenTelemetry configurations
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// RetryConfig holds backoff related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
