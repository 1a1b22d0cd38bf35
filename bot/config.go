package bot

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment keys of the bot configuration.
const (
	CfgTgToken              = "TG_TOKEN"
	CfgStoreDriver          = "STORE_DRIVER"
	CfgStoreURL             = "STORE_URL"
	CfgStoreAPIKey          = "STORE_API_KEY"
	CfgDbTimeout            = "DB_TIMEOUT"
	CfgDbRetryAttempts      = "DB_RETRY_ATTEMPTS"
	CfgDbRetryDelay         = "DB_RETRY_DELAY"
	CfgRunMigrations        = "RUN_MIGRATIONS"
	CfgSendRetryAttempts    = "SEND_RETRY_ATTEMPTS"
	CfgSendRetryDelay       = "SEND_RETRY_DELAY"
	CfgReminderPollInterval = "REMINDER_POLL_INTERVAL"
	CfgPomodoroTick         = "POMODORO_TICK"
	CfgPomodoroRefreshEvery = "POMODORO_REFRESH_EVERY"
	CfgPomodoroCycle        = "POMODORO_CYCLE"
	CfgHealthAddr           = "HEALTH_ADDR"
	CfgShutdownTimeout      = "SHUTDOWN_TIMEOUT"
	CfgLogLevel             = "LOG_LEVEL"
	CfgLogEncoding          = "LOG_ENCODING"
)

// Config keeps bot configuration.
type Config struct {
	TgToken         string
	Store           StoreConfig
	Send            RetryConfig
	Reminder        ReminderConfig
	Pomodoro        PomodoroConfig
	HealthAddr      string // empty disables the health endpoint
	ShutdownTimeout time.Duration
	Log             LogConfig
}

type StoreConfig struct {
	Driver        string // postgrest, postgres or sqlite
	URL           string
	APIKey        string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Migrate       bool
}

type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

type ReminderConfig struct {
	PollInterval time.Duration
}

type PomodoroConfig struct {
	Tick         time.Duration
	RefreshEvery int // in ticks
	Cycle        string
}

type LogConfig struct {
	Level    string
	Encoding string
}

// LoadConfig reads and validates the configuration.
func LoadConfig(envFiles ...string) (*Config, error) {
	cfg := ReadConfig(envFiles...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig reads configuration from the environment, after loading the
// given .env files (".env" if none). Missing files are not an error.
func ReadConfig(envFiles ...string) *Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	cfg := &Config{
		TgToken: os.Getenv(CfgTgToken),
		Store: StoreConfig{
			Driver:        strings.ToLower(getString(CfgStoreDriver, "postgrest")),
			URL:           os.Getenv(CfgStoreURL),
			APIKey:        os.Getenv(CfgStoreAPIKey),
			Timeout:       getDuration(CfgDbTimeout, 10*time.Second),
			RetryAttempts: getInt(CfgDbRetryAttempts, 3),
			RetryDelay:    getDuration(CfgDbRetryDelay, 2*time.Second),
			Migrate:       getBool(CfgRunMigrations, false),
		},
		Send: RetryConfig{
			Attempts: getInt(CfgSendRetryAttempts, 3),
			Delay:    getDuration(CfgSendRetryDelay, time.Second),
		},
		Reminder: ReminderConfig{
			PollInterval: getDuration(CfgReminderPollInterval, time.Minute),
		},
		Pomodoro: PomodoroConfig{
			Tick:         getDuration(CfgPomodoroTick, time.Second),
			RefreshEvery: getInt(CfgPomodoroRefreshEvery, 5),
			Cycle:        strings.ToLower(getString(CfgPomodoroCycle, "literal")),
		},
		HealthAddr:      os.Getenv(CfgHealthAddr),
		ShutdownTimeout: getDuration(CfgShutdownTimeout, 15*time.Second),
		Log: LogConfig{
			Level:    getString(CfgLogLevel, "info"),
			Encoding: getString(CfgLogEncoding, "console"),
		},
	}

	return cfg
}

// Validate makes sure that all required fields are present in the config.
func (c *Config) Validate() error {
	missingFields := []string{}
	if c.TgToken == "" {
		missingFields = append(missingFields, CfgTgToken)
	}
	if c.Store.Driver != "sqlite" && c.Store.URL == "" {
		missingFields = append(missingFields, CfgStoreURL)
	}
	if c.Store.Driver == "postgrest" && c.Store.APIKey == "" {
		missingFields = append(missingFields, CfgStoreAPIKey)
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("configuration is missing field(s): %s", strings.Join(missingFields, ", "))
	}

	switch c.Store.Driver {
	case "postgrest", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown %s %q", CfgStoreDriver, c.Store.Driver)
	}

	switch c.Pomodoro.Cycle {
	case "repeat", "literal":
	default:
		return fmt.Errorf("unknown %s %q", CfgPomodoroCycle, c.Pomodoro.Cycle)
	}

	if c.Reminder.PollInterval <= 0 || c.Pomodoro.Tick <= 0 || c.Pomodoro.RefreshEvery <= 0 {
		return fmt.Errorf("%s, %s and %s must be positive",
			CfgReminderPollInterval, CfgPomodoroTick, CfgPomodoroRefreshEvery)
	}
	return nil
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDuration accepts Go durations ("90s") and plain seconds ("90").
func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
