package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend   string
	DataDirectory string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets journal
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Settlement
	TransferMaxRetries int
	IdempotencyTTL     time.Duration

	// Worker
	LimitResetInterval time.Duration
	LimitResetTZ       string
	JournalTimeout     time.Duration
	// JournalBackfill is how many recent transfers per account the worker
	// re-journals at startup; 0 disables the backfill.
	JournalBackfill int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:   getEnv("DATA_BACKEND", "sqlite"),
		DataDirectory: getEnv("DATA_DIRECTORY", "data"),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/conti.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "conti"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "journal_transfers"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Journal"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		TransferMaxRetries: getEnvInt("TRANSFER_MAX_RETRIES", 3),
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		LimitResetInterval: getEnvDuration("LIMIT_RESET_INTERVAL", time.Minute),
		LimitResetTZ:       getEnv("LIMIT_RESET_TZ", "UTC"),
		JournalTimeout:     getEnvDuration("JOURNAL_TIMEOUT", 30*time.Second),
		JournalBackfill:    getEnvInt("JOURNAL_BACKFILL", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	return cfg
}

// JournalEnabled reports whether settlement events go to Google Sheets.
func (c *Config) JournalEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// ResetLocation resolves LimitResetTZ, falling back to UTC.
func (c *Config) ResetLocation() *time.Location {
	if c.LimitResetTZ == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.LimitResetTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.JournalEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when the Sheets journal is enabled")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.TransferMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid transfer max retries %d: must be at least 1", c.TransferMaxRetries))
	} else if c.TransferMaxRetries > 20 {
		errors = append(errors, fmt.Sprintf("invalid transfer max retries %d: must be at most 20", c.TransferMaxRetries))
	}

	if c.IdempotencyTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid idempotency ttl %v: must be at least 1 minute", c.IdempotencyTTL))
	}

	if c.LimitResetInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid limit reset interval %v: must be at least 1 second", c.LimitResetInterval))
	} else if c.LimitResetInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid limit reset interval %v: must be at most 1 hour", c.LimitResetInterval))
	}

	if c.JournalBackfill < 0 {
		errors = append(errors, fmt.Sprintf("invalid journal backfill %d: must not be negative", c.JournalBackfill))
	}

	if c.LimitResetTZ != "" {
		if _, err := time.LoadLocation(c.LimitResetTZ); err != nil {
			errors = append(errors, fmt.Sprintf("invalid limit reset time zone '%s': %v", c.LimitResetTZ, err))
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be json or text", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
