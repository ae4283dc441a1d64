package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"    validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// AllowedOrigins lists the browser origins permitted by CORS.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// RedisConfig contains the settings for the pub/sub broker that carries
// task notification events.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig contains the settings for the background job runner that
// processes post-creation broadcasts.
type WorkerConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize   int `mapstructure:"queue_size"   validate:"required,gt=0"`

	// MaxAttempts caps how many times a job is tried before it is marked
	// permanently failed. Only transient failures are retried.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// RetryDelayMillis is the fixed backoff between attempts.
	RetryDelayMillis int `mapstructure:"retry_delay_millis" validate:"gte=0"`

	// ProcessingDelayMinMillis/MaxMillis bound the randomized wait a
	// creation broadcast performs before re-verifying the task. The upper
	// bound must stay small enough not to starve the retry budget.
	ProcessingDelayMinMillis int `mapstructure:"processing_delay_min_millis" validate:"gte=0"`
	ProcessingDelayMaxMillis int `mapstructure:"processing_delay_max_millis" validate:"gtefield=ProcessingDelayMinMillis"`
}
