// Package constants defines shared configuration constants and defaults.
package constants

import "time"

// Query limits - Profiler event query bounds.
const (
	// DefaultQueryLimit is the number of events returned when a query
	// does not specify a limit.
	DefaultQueryLimit = 50

	// MaxQueryLimit is the server-side hard cap on returned events.
	// Requests above the cap are clamped, not rejected.
	MaxQueryLimit = 200

	// SummaryTextLimit is the display budget for event text in query
	// summaries. Longer text is truncated with an ellipsis.
	SummaryTextLimit = 512

	// DetailTextLimit is the display budget for event text in
	// single-event detail responses.
	DetailTextLimit = 4096
)

// Buffers - Profiler session buffer defaults.
const (
	// DefaultSessionBufferCapacity is the per-session event ring
	// capacity when the peer does not specify one.
	DefaultSessionBufferCapacity = 5000
)

// Timeouts - Default timeout values.
const (
	// DefaultPeerRequestTimeout is the default timeout for requests to
	// the SQL Tools Service peer.
	DefaultPeerRequestTimeout = 10 * time.Second

	// DefaultQueryTimeout is the default timeout for database queries.
	DefaultQueryTimeout = 30 * time.Second

	// DefaultShutdownTimeout is the grace period for draining on shutdown.
	DefaultShutdownTimeout = 5 * time.Second
)

// Intervals - Default interval values.
const (
	// DefaultHistoryCleanupInterval is how often old task-history rows
	// are pruned.
	DefaultHistoryCleanupInterval = 1 * time.Hour

	// DefaultHistoryRetention is how long terminal task outcomes are kept.
	DefaultHistoryRetention = 7 * 24 * time.Hour
)

// Paths and files.
const (
	// DefaultDir is the remora data directory under the user's home.
	DefaultDir = ".remora"

	// ConfigFile is the name of the service configuration file.
	ConfigFile = "config.yaml"

	// HistoryDBFile is the name of the embedded task-history database.
	HistoryDBFile = "history.duckdb"
)
