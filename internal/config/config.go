package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server      ServerConfig
	MongoDB     MongoDBConfig
	Sheets      SheetsConfig
	Audit       AuditConfig
	Maintenance MaintenanceConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// SheetsConfig contains configuration required to export growth reports to
// Google Sheets. Both fields empty disables the export.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the Sheets export is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// AuditConfig holds the external audit sink and retention settings. An empty
// WebhookURL disables forwarding; entries are still persisted locally.
type AuditConfig struct {
	WebhookURL    string
	AuthToken     string
	RetentionDays int
}

// MaintenanceConfig holds the cron schedules for the background jobs.
type MaintenanceConfig struct {
	SweepSchedule  string
	PurgeSchedule  string
	ReportSchedule string
	Timezone       string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	retention, err := getenvInt("AUDIT_RETENTION_DAYS", 365)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "growthengine"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_REPORT_ID"),
		},
		Audit: AuditConfig{
			WebhookURL:    os.Getenv("AUDIT_WEBHOOK_URL"),
			AuthToken:     os.Getenv("AUDIT_WEBHOOK_TOKEN"),
			RetentionDays: retention,
		},
		Maintenance: MaintenanceConfig{
			SweepSchedule:  getenvWithDefault("STATS_SWEEP_SCHEDULE", "*/5 * * * *"),
			PurgeSchedule:  getenvWithDefault("AUDIT_PURGE_SCHEDULE", "0 3 * * *"),
			ReportSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * 5"),
			Timezone:       getenvWithDefault("TIMEZONE", "UTC"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.MongoDB.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must be provided")
	}

	// Sheets export is optional, but a half-configured pair is a mistake.
	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_REPORT_ID must be set together")
	}

	if c.Audit.RetentionDays <= 0 {
		return errors.New("AUDIT_RETENTION_DAYS must be positive")
	}

	switch {
	case c.Maintenance.SweepSchedule == "":
		return errors.New("STATS_SWEEP_SCHEDULE must be provided")
	case c.Maintenance.PurgeSchedule == "":
		return errors.New("AUDIT_PURGE_SCHEDULE must be provided")
	case c.Maintenance.ReportSchedule == "":
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	case c.Maintenance.Timezone == "":
		return errors.New("TIMEZONE must be provided")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}
