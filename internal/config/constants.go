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
const ReaperInterval = 1 * time.Minute

// Bounded wait for the autonomous loop task to exit after a stop request.
const LoopStopTimeout = 2 * time.Second

// Replies shorter than this after sanitization are discarded and the turn
// is not advanced.
const MinMeaningfulReplyLen = 3

// Per-exchange deadline for a single inference round trip.
const InferenceCallTimeout = 90 * time.Second

// Deadline for generating a debrief from a finished transcript.
const DebriefTimeout = 2 * time.Minute
