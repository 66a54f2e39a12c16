package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"courier/internal/constants"
	"courier/internal/models"
)

var (
	ErrMissingMessagingURL = models.ConfigError{Message: "missing messaging provider API URL"}
	ErrMissingEmailURL     = models.ConfigError{Message: "missing email provider API URL"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Messaging.APIBaseURL == "" {
		return ErrMissingMessagingURL
	}
	if c.Email.APIBaseURL == "" {
		return ErrMissingEmailURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.RateLimit.SendLimit <= 0 {
		return models.ConfigError{Message: "rateLimit.sendLimit must be positive"}
	}
	if c.RateLimit.SendWindowSec <= 0 {
		return models.ConfigError{Message: "rateLimit.sendWindowSec must be positive"}
	}
	if c.Reminders.DefaultEscalationDays <= 0 {
		return models.ConfigError{Message: "reminders.defaultEscalationDays must be positive"}
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.RequestsPerMinute == 0 {
		c.Server.RequestsPerMinute = constants.DefaultRequestsPerMinute
	}
	if c.RateLimit.SendLimit == 0 {
		c.RateLimit.SendLimit = constants.DefaultSendLimit
	}
	if c.RateLimit.SendWindowSec == 0 {
		c.RateLimit.SendWindowSec = constants.DefaultSendWindowSec
	}
	if c.Messaging.DefaultCountry == "" {
		c.Messaging.DefaultCountry = constants.DefaultCountryCode
	}
	if c.Messaging.TimeoutSec == 0 {
		c.Messaging.TimeoutSec = constants.DefaultProviderTimeoutSec
	}
	if c.Email.TimeoutSec == 0 {
		c.Email.TimeoutSec = constants.DefaultProviderTimeoutSec
	}
	if c.Reminders.IntervalMinutes == 0 {
		c.Reminders.IntervalMinutes = constants.DefaultReminderIntervalMinutes
	}
	if c.Reminders.DedupHours == 0 {
		c.Reminders.DedupHours = constants.DefaultReminderDedupHours
	}
	if c.Reminders.DefaultEscalationDays == 0 {
		c.Reminders.DefaultEscalationDays = constants.DefaultEscalationDays
	}
	if c.Reminders.QueueDrainSec == 0 {
		c.Reminders.QueueDrainSec = constants.DefaultQueueDrainSec
	}
	if c.Retry.InitialBackoffMs == 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs == 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
}

// applyEnvironmentOverrides lets deployment environments override the file
// without editing it. Credentials are expected to arrive only this way.
func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("COURIER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("COURIER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("COURIER_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("COURIER_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("COURIER_MESSAGING_API_URL"); v != "" {
		c.Messaging.APIBaseURL = v
	}
	if v := os.Getenv("COURIER_MESSAGING_FROM_NUMBER"); v != "" {
		c.Messaging.FromNumber = v
	}
	if v := os.Getenv("COURIER_EMAIL_API_URL"); v != "" {
		c.Email.APIBaseURL = v
	}
	if v := os.Getenv("COURIER_EMAIL_FROM_ADDRESS"); v != "" {
		c.Email.FromAddress = v
	}
	if v := os.Getenv("COURIER_WEBHOOK_SECRET"); v != "" {
		c.Server.WebhookSecret = v
	}
}

// AuthTokensFromEnv parses COURIER_AUTH_TOKENS into a token -> user id map.
// Format: "token1:user1,token2:user2". An empty variable yields an empty map,
// which rejects every caller.
func AuthTokensFromEnv() (map[string]string, error) {
	raw := os.Getenv("COURIER_AUTH_TOKENS")
	tokens := make(map[string]string)
	if raw == "" {
		return tokens, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed auth token entry: %q", pair)
		}
		tokens[parts[0]] = parts[1]
	}

	return tokens, nil
}
