package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"renter-registry/pkg/database"
)

type Config struct {
	DatabaseURL string
	StoreDriver string // "mysql" or "memory"
	Port        string

	// Database performance settings
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime int // minutes
	DBConnMaxIdleTime int // minutes
	DBReadTimeout     time.Duration
	DBWriteTimeout    time.Duration

	// Monitoring and logging settings
	LogLevel          string
	LogFormat         string // "json" or "text"
	LogFile           string
	EnableFileLogging bool

	HealthCheckPath string
	Env             string // development, staging, production
	MetricsEnabled  bool
	MetricsPath     string

	// pprof on a separate admin port
	ProfilingEnabled bool
	ProfilingPort    string

	// Match policy. An empty PolicyFile means the embedded default.
	PolicyFile string

	// ConfigFile is an optional .env file watched for changes.
	ConfigFile string

	ReloadDelay   time.Duration
	EventsEnabled bool

	// Profiles sharing a normalized name at least this often make it generic.
	GenericNameMinCount int

	// Duplicate sweep
	SweepEnabled   bool
	SweepInterval  time.Duration
	SweepWorkers   int
	SweepRPS       float64
	SweepBurst     int
	SweepBatchSize int
	SweepLookback  time.Duration
}

func Load() *Config {
	dbMaxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	dbMaxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "10"))
	dbConnMaxLifetime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_LIFETIME_MINUTES", "10"))
	dbConnMaxIdleTime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_IDLE_TIME_MINUTES", "5"))
	dbReadTO, _ := time.ParseDuration(getEnv("DB_READ_TIMEOUT", "5s"))
	dbWriteTO, _ := time.ParseDuration(getEnv("DB_WRITE_TIMEOUT", "5s"))

	enableFileLogging, _ := strconv.ParseBool(getEnv("ENABLE_FILE_LOGGING", "false"))

	env := strings.ToLower(getEnv("ENV", "development"))
	metricsEnabled, _ := strconv.ParseBool(getEnv("METRICS_ENABLED", "true"))
	profilingEnabled, _ := strconv.ParseBool(getEnv("PROFILING_ENABLED", "false"))
	eventsEnabled, _ := strconv.ParseBool(getEnv("EVENTS_ENABLED", "true"))
	reloadDelay, _ := time.ParseDuration(getEnv("CONFIG_RELOAD_DELAY", "500ms"))

	genericMin, _ := strconv.Atoi(getEnv("GENERIC_NAME_MIN_COUNT", "25"))

	sweepEnabled, _ := strconv.ParseBool(getEnv("SWEEP_ENABLED", "true"))
	sweepInterval, _ := time.ParseDuration(getEnv("SWEEP_INTERVAL", "5m"))
	sweepWorkers, _ := strconv.Atoi(getEnv("SWEEP_WORKERS", "4"))
	sweepRPS, _ := strconv.ParseFloat(getEnv("SWEEP_RPS", "20"), 64)
	sweepBurst, _ := strconv.Atoi(getEnv("SWEEP_BURST", "10"))
	sweepBatch, _ := strconv.Atoi(getEnv("SWEEP_BATCH_SIZE", "500"))
	sweepLookback, _ := time.ParseDuration(getEnv("SWEEP_LOOKBACK", "24h"))

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "mysql")),
		Port:        getEnv("PORT", "8080"),

		DBMaxOpenConns:    dbMaxOpenConns,
		DBMaxIdleConns:    dbMaxIdleConns,
		DBConnMaxLifetime: dbConnMaxLifetime,
		DBConnMaxIdleTime: dbConnMaxIdleTime,
		DBReadTimeout:     dbReadTO,
		DBWriteTimeout:    dbWriteTO,

		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		LogFile:           getEnv("LOG_FILE", "/var/log/renter-registry/app.log"),
		EnableFileLogging: enableFileLogging,

		HealthCheckPath: getEnv("HEALTH_CHECK_PATH", "/health"),
		Env:             env,
		MetricsEnabled:  metricsEnabled,
		MetricsPath:     getEnv("METRICS_PATH", "/metrics"),

		ProfilingEnabled: profilingEnabled,
		ProfilingPort:    getEnv("PROFILING_PORT", "6060"),

		PolicyFile:    strings.TrimSpace(getEnv("MATCH_POLICY_FILE", "")),
		ConfigFile:    strings.TrimSpace(getEnv("CONFIG_FILE", "")),
		ReloadDelay:   reloadDelay,
		EventsEnabled: eventsEnabled,

		GenericNameMinCount: genericMin,

		SweepEnabled:   sweepEnabled,
		SweepInterval:  sweepInterval,
		SweepWorkers:   sweepWorkers,
		SweepRPS:       sweepRPS,
		SweepBurst:     sweepBurst,
		SweepBatchSize: sweepBatch,
		SweepLookback:  sweepLookback,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// PoolConfig converts the DB settings for database.NewWithConfig.
func (c *Config) PoolConfig() database.PoolConfig {
	return database.PoolConfig{
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(c.DBConnMaxLifetime) * time.Minute,
		ConnMaxIdleTime: time.Duration(c.DBConnMaxIdleTime) * time.Minute,
		ReadTimeout:     c.DBReadTimeout,
		WriteTimeout:    c.DBWriteTimeout,
	}
}
