package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Friend-mode flag lifecycle: soft-deactivated after its TTL (see
// Config.FriendModeTTL), rows hard-deleted once this much older.
const FriendModeHardDeleteAge = time.Hour

// Bounded retry for serialization/lock conflicts on the accounts table.
const (
	StorageRetryAttempts = 5
	StorageRetryBackoff  = 200 * time.Millisecond
)

// Rotation: length of freshly generated passwords and the pause before the
// single retry after a failed rotation attempt.
const (
	RotationPasswordLength = 12
	RotationRetryBackoff   = 5 * time.Second
)

// Buyer chat command throttling
const (
	CommandRateLimit  = 5
	CommandRateWindow = time.Minute
)
