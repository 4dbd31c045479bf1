package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
)

// Timeout and duration constants
const (
	// DefaultHTTPClientTimeout is the timeout for non-streaming HTTP client requests
	DefaultHTTPClientTimeout = 60 * time.Second
	// DefaultSubmissionTimeout bounds a whole prompt submission
	DefaultSubmissionTimeout = 5 * time.Minute
	// DefaultRetryDelay is the fixed wait between attempts
	DefaultRetryDelay = time.Second
	// DefaultRetryAttempts is the number of retries after the first attempt
	DefaultRetryAttempts = 2
	// DefaultDebounceInterval coalesces streaming appends into one durable write
	DefaultDebounceInterval = 500 * time.Millisecond
	// DefaultHealthCheckTimeout bounds a single provider key validation
	DefaultHealthCheckTimeout = 15 * time.Second
)

// History constants
const (
	// DefaultHistoryLimit is the default number of entries to load
	DefaultHistoryLimit = 50
	// DefaultHistorySearchLimit is the default number of search results to return
	DefaultHistorySearchLimit = 50
	// DefaultHistoryRetainDays is the default for the retain command
	DefaultHistoryRetainDays = 30
)

// Generation constants
const (
	// DefaultMaxTokens is the default maximum number of output tokens
	DefaultMaxTokens = 1024
)

// Server constants
const (
	// DefaultListenAddress is where the HTTP API listens by default
	DefaultListenAddress = "127.0.0.1:8787"
)

// Time formats
const (
	// TimestampFormat is how the CLI prints absolute times
	TimestampFormat = "2006-01-02 15:04:05"
)
