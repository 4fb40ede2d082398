package errors

import "net/http"

// Client-visible failures use fixed literals; internal detail never leaks
// into messages.
var (
	ErrNotFound = New(
		"NOT_FOUND",
		"Not found",
		http.StatusNotFound,
	)

	ErrParseError = New(
		"PARSE_ERROR",
		"Parse error",
		http.StatusBadRequest,
	)

	ErrInvalidKey = New(
		"INVALID_KEY",
		"invalid_key",
		http.StatusBadRequest,
	)

	ErrLimitExceeded = New(
		"LIMIT_EXCEEDED",
		"limit_exceeded",
		http.StatusForbidden,
	)

	ErrDatabaseError = New(
		"DATABASE_ERROR",
		"Database operation failed",
		http.StatusInternalServerError,
	)

	ErrQueueFull = New(
		"QUEUE_FULL",
		"Queue storage exhausted",
		http.StatusServiceUnavailable,
	)

	ErrCacheError = New(
		"CACHE_ERROR",
		"Cache operation failed",
		http.StatusInternalServerError,
	)

	ErrInternalServer = New(
		"INTERNAL_SERVER_ERROR",
		"Internal server error",
		http.StatusInternalServerError,
	)
)
