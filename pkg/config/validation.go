package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	errs "renter-registry/pkg/errors"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error for field '%s' with value '%s': %s", e.Field, e.Value, e.Message)
}

// ConfigValidator collects validation errors
type ConfigValidator struct {
	errors []ValidationError
}

func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{errors: make([]ValidationError, 0)}
}

func (cv *ConfigValidator) AddError(field, value, message string) {
	cv.errors = append(cv.errors, ValidationError{Field: field, Value: value, Message: message})
}

func (cv *ConfigValidator) HasErrors() bool { return len(cv.errors) > 0 }

func (cv *ConfigValidator) GetErrors() []ValidationError { return cv.errors }

// GetErrorsAsString returns all validation errors, one per line
func (cv *ConfigValidator) GetErrorsAsString() string {
	var errorStrings []string
	for _, err := range cv.errors {
		errorStrings = append(errorStrings, err.Error())
	}
	return strings.Join(errorStrings, "\n")
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	validator := NewConfigValidator()

	c.validateRequired(validator)
	c.validateFormats(validator)
	c.validateRanges(validator)
	c.validateEnvironment(validator)

	if validator.HasErrors() {
		return errs.NewValidation("config.Validate", fmt.Sprintf("configuration validation failed:\n%s", validator.GetErrorsAsString()), nil)
	}
	return nil
}

func (c *Config) validateRequired(validator *ConfigValidator) {
	if c.StoreDriver == "mysql" && c.DatabaseURL == "" {
		validator.AddError("DATABASE_URL", c.DatabaseURL, "database URL is required for the mysql store")
	}
	if c.Port == "" {
		validator.AddError("PORT", c.Port, "port is required")
	}
}

func (c *Config) validateFormats(validator *ConfigValidator) {
	if c.StoreDriver != "mysql" && c.StoreDriver != "memory" {
		validator.AddError("STORE_DRIVER", c.StoreDriver, "store driver must be 'mysql' or 'memory'")
	}

	// go-sql-driver DSN: user:pass@tcp(host:port)/dbname
	if c.DatabaseURL != "" {
		if !strings.Contains(c.DatabaseURL, "@") || !strings.Contains(c.DatabaseURL, "/") {
			validator.AddError("DATABASE_URL", maskString(c.DatabaseURL, 8), "invalid database URL format")
		}
	}

	if c.Port != "" {
		if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
			validator.AddError("PORT", c.Port, "invalid port number (must be 1-65535)")
		}
	}

	if c.ProfilingEnabled {
		if port, err := strconv.Atoi(c.ProfilingPort); err != nil || port < 1 || port > 65535 {
			validator.AddError("PROFILING_PORT", c.ProfilingPort, "invalid port number (must be 1-65535)")
		} else if c.ProfilingPort == c.Port {
			validator.AddError("PROFILING_PORT", c.ProfilingPort, "profiling port must differ from PORT")
		}
	}

	validLogLevels := []string{"trace", "debug", "info", "warn", "error"}
	if c.LogLevel != "" && !contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		validator.AddError("LOG_LEVEL", c.LogLevel, "invalid log level (must be one of: trace, debug, info, warn, error)")
	}
	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "text" {
		validator.AddError("LOG_FORMAT", c.LogFormat, "invalid log format (must be 'json' or 'text')")
	}

	for name, path := range map[string]string{"HEALTH_CHECK_PATH": c.HealthCheckPath, "METRICS_PATH": c.MetricsPath} {
		if !strings.HasPrefix(path, "/") {
			validator.AddError(name, path, "path must start with '/'")
		}
	}
}

func (c *Config) validateRanges(validator *ConfigValidator) {
	if c.DBMaxOpenConns < 1 || c.DBMaxOpenConns > 1000 {
		validator.AddError("DB_MAX_OPEN_CONNS", strconv.Itoa(c.DBMaxOpenConns), "max open connections must be between 1 and 1000")
	}
	if c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		validator.AddError("DB_MAX_IDLE_CONNS", strconv.Itoa(c.DBMaxIdleConns), "max idle connections must be between 0 and max open connections")
	}
	if c.DBConnMaxLifetime < 1 || c.DBConnMaxLifetime > 60 {
		validator.AddError("DB_CONN_MAX_LIFETIME_MINUTES", strconv.Itoa(c.DBConnMaxLifetime), "connection max lifetime must be between 1 and 60 minutes")
	}
	if c.DBConnMaxIdleTime < 1 || c.DBConnMaxIdleTime > 30 {
		validator.AddError("DB_CONN_MAX_IDLE_TIME_MINUTES", strconv.Itoa(c.DBConnMaxIdleTime), "connection max idle time must be between 1 and 30 minutes")
	}
	if c.DBReadTimeout <= 0 {
		validator.AddError("DB_READ_TIMEOUT", c.DBReadTimeout.String(), "read timeout must be positive")
	}
	if c.DBWriteTimeout <= 0 {
		validator.AddError("DB_WRITE_TIMEOUT", c.DBWriteTimeout.String(), "write timeout must be positive")
	}
	if c.GenericNameMinCount < 2 {
		validator.AddError("GENERIC_NAME_MIN_COUNT", strconv.Itoa(c.GenericNameMinCount), "generic name count must be at least 2")
	}
	if c.ReloadDelay < 0 {
		validator.AddError("CONFIG_RELOAD_DELAY", c.ReloadDelay.String(), "reload delay must not be negative")
	}

	if !c.SweepEnabled {
		return
	}
	if c.SweepInterval <= 0 {
		validator.AddError("SWEEP_INTERVAL", c.SweepInterval.String(), "sweep interval must be positive")
	}
	if c.SweepWorkers < 1 || c.SweepWorkers > 64 {
		validator.AddError("SWEEP_WORKERS", strconv.Itoa(c.SweepWorkers), "sweep workers must be between 1 and 64")
	}
	if c.SweepRPS <= 0 {
		validator.AddError("SWEEP_RPS", strconv.FormatFloat(c.SweepRPS, 'f', -1, 64), "sweep rate must be positive")
	}
	if c.SweepBurst < 1 {
		validator.AddError("SWEEP_BURST", strconv.Itoa(c.SweepBurst), "sweep burst must be at least 1")
	}
	if c.SweepBatchSize < 1 {
		validator.AddError("SWEEP_BATCH_SIZE", strconv.Itoa(c.SweepBatchSize), "sweep batch size must be at least 1")
	}
	if c.SweepLookback < 0 {
		validator.AddError("SWEEP_LOOKBACK", c.SweepLookback.String(), "sweep lookback must not be negative")
	}
}

func (c *Config) validateEnvironment(validator *ConfigValidator) {
	if c.EnableFileLogging && c.LogFile != "" {
		if err := checkDirectoryWritable(c.LogFile); err != nil {
			validator.AddError("LOG_FILE", c.LogFile, fmt.Sprintf("log directory is not writable: %v", err))
		}
	}
	for name, path := range map[string]string{"MATCH_POLICY_FILE": c.PolicyFile, "CONFIG_FILE": c.ConfigFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			validator.AddError(name, path, fmt.Sprintf("file is not readable: %v", err))
		}
	}
}

// checkDirectoryWritable checks that the directory holding filePath exists or
// can be created, and accepts a write.
func checkDirectoryWritable(filePath string) error {
	dir := filepath.Dir(filePath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.NewValidation("config.checkDirectoryWritable", "cannot create directory", err)
		}
	}

	tempFile := filepath.Join(dir, fmt.Sprintf(".write_test_%d", os.Getpid()))
	file, err := os.Create(tempFile)
	if err != nil {
		return errs.NewValidation("config.checkDirectoryWritable", "directory is not writable", err)
	}
	file.Close()
	os.Remove(tempFile)
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// GetConfigSummary returns a summary of the configuration without secrets
func (c *Config) GetConfigSummary() map[string]interface{} {
	return map[string]interface{}{
		"database_url":           maskString(c.DatabaseURL, 8),
		"store_driver":           c.StoreDriver,
		"port":                   c.Port,
		"env":                    c.Env,
		"db_max_open_conns":      c.DBMaxOpenConns,
		"db_max_idle_conns":      c.DBMaxIdleConns,
		"log_level":              c.LogLevel,
		"log_format":             c.LogFormat,
		"enable_file_logging":    c.EnableFileLogging,
		"metrics_enabled":        c.MetricsEnabled,
		"profiling_enabled":      c.ProfilingEnabled,
		"policy_file":            c.PolicyFile,
		"config_file":            c.ConfigFile,
		"generic_name_min_count": c.GenericNameMinCount,
		"sweep_enabled":          c.SweepEnabled,
		"sweep_interval":         c.SweepInterval.String(),
		"sweep_workers":          c.SweepWorkers,
	}
}

// maskString masks sensitive strings for logging/display
func maskString(s string, keepFirst int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepFirst {
		return strings.Repeat("*", len(s))
	}
	return s[:keepFirst] + strings.Repeat("*", len(s)-keepFirst)
}
