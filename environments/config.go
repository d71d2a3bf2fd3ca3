package environments

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Dispatch DispatchConfig
	Tracking TrackingConfig
	Alert    AlertConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// DispatchConfig tunes the delivery pipeline. PerMessageDelay is the fixed
// inter-message throttle inside one relay session, the primary defense
// against relay-side rate limiting. RefreshAfter forces a connection
// reopen after that many sends within one batch run.
type DispatchConfig struct {
	TickInterval    time.Duration
	SelectLimit     int
	BatchSize       int
	WorkerCount     int
	PerMessageDelay time.Duration
	InterBatchDelay time.Duration
	ConnectRetries  int
	ConnectBackoff  time.Duration
	RefreshAfter    int
}

type TrackingConfig struct {
	// BaseURL is the externally reachable prefix embedded in rewritten
	// links and beacons, e.g. "https://mail.example.com".
	BaseURL string
}

type AlertConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

type AuthConfig struct {
	APIKey string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "nexus"),
			Password: GetEnv("DB_PASSWORD", "nexus123"),
			DBName:   GetEnv("DB_NAME", "nexus_mailer"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Dispatch: DispatchConfig{
			TickInterval:    GetEnvAsDuration("DISPATCH_TICK_INTERVAL", 10*time.Second),
			SelectLimit:     GetEnvAsInt("DISPATCH_SELECT_LIMIT", 2000),
			BatchSize:       GetEnvAsInt("DISPATCH_BATCH_SIZE", 50),
			WorkerCount:     GetEnvAsInt("DISPATCH_WORKER_COUNT", 4),
			PerMessageDelay: GetEnvAsDuration("DISPATCH_PER_MESSAGE_DELAY", 500*time.Millisecond),
			InterBatchDelay: GetEnvAsDuration("DISPATCH_INTER_BATCH_DELAY", 100*time.Millisecond),
			ConnectRetries:  GetEnvAsInt("DISPATCH_CONNECT_RETRIES", 3),
			ConnectBackoff:  GetEnvAsDuration("DISPATCH_CONNECT_BACKOFF", 5*time.Second),
			RefreshAfter:    GetEnvAsInt("DISPATCH_REFRESH_AFTER", 500),
		},
		Tracking: TrackingConfig{
			BaseURL: GetEnv("TRACKING_BASE_URL", "http://localhost:8080"),
		},
		Alert: AlertConfig{
			WebhookURL: GetEnv("ALERT_WEBHOOK_URL", ""),
			Timeout:    GetEnvAsDuration("ALERT_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			APIKey: GetEnv("API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
