package constants

import "time"

// Centralized default values for timeouts, intervals, and related settings.
// These provide sane defaults; environment/config may override where supported.

const (
	// Database
	DBReadTimeoutDefault  = 5 * time.Second
	DBWriteTimeoutDefault = 5 * time.Second

	// Health
	HealthTimeoutDefault = 5 * time.Second

	// Duplicate sweep
	SweepJobTimeoutDefault = 10 * time.Second
	SweepQueueSizeDefault  = 1000

	// Candidate lookup circuit breaker
	BreakerOpenForDefault     = 15 * time.Second
	BreakerSlowCallDefault    = time.Second
	BreakerMaxConsecFailures  = 5
	BreakerFailureRateDefault = 0.5

	// App shutdown
	GracefulShutdownTimeoutDefault = 10 * time.Second

	// Events store SQL operations
	EventsSQLTimeoutDefault = 5 * time.Second
)
