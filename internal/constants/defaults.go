package constants

// Default server configuration values
const (
	DefaultServerPort            = 8084
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultRequestsPerMinute     = 120
	ServerErrorChannelSize       = 1
)

// Default delivery pipeline values
const (
	DefaultSendLimit          = 30
	DefaultSendWindowSec      = 60
	DefaultCountryCode        = "55"
	DefaultQueueDrainSec      = 15
	DefaultQueueBatchSize     = 50
	DefaultProviderTimeoutSec = 30
)

// Default reminder sweep values
const (
	DefaultReminderIntervalMinutes = 60
	DefaultReminderDedupHours      = 24
	DefaultEscalationDays          = 3
)

// Default resilience values
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)

// Key derivation salt for at-rest field encryption. Keys are derived from
// the operator-supplied secret; the salt only namespaces the derivation.
const EncryptionSalt = "courier-outbox-v1"
