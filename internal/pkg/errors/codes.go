package errors

import (
	"fmt"
	"net/http"
)

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Completion errors (2000-2999)
	ErrCompletionUpstream = 2000
	ErrCompletionTimeout  = 2001
	ErrCompletionParse    = 2002

	// Search errors (3000-3999)
	ErrSearchUpstream   = 3000
	ErrSearchNoProvider = 3001

	// Citation errors (4000-4999)
	ErrCitationDelegate = 4000

	// Memory errors (5000-5999)
	ErrMemoryPersistence = 5000
	ErrMemoryExport      = 5001
)

// codeMessages maps error codes to default messages
var codeMessages = map[int]string{
	Success:            "success",
	ErrInternalServer:  "internal server error",
	ErrInvalidParams:   "invalid parameters",
	ErrNotFound:        "resource not found",
	ErrTooManyRequests: "too many requests",
	ErrBadRequest:      "bad request",
	ErrServiceUnavail:  "service unavailable",

	ErrCompletionUpstream: "completion service error",
	ErrCompletionTimeout:  "completion service timeout",
	ErrCompletionParse:    "failed to parse completion response",

	ErrSearchUpstream:   "search service error",
	ErrSearchNoProvider: "no search provider configured",

	ErrCitationDelegate: "citation delegation failed",

	ErrMemoryPersistence: "memory persistence error",
	ErrMemoryExport:      "memory export failed",
}

// codeStatus maps error codes to HTTP status codes
var codeStatus = map[int]int{
	Success:            http.StatusOK,
	ErrInternalServer:  http.StatusInternalServerError,
	ErrInvalidParams:   http.StatusBadRequest,
	ErrNotFound:        http.StatusNotFound,
	ErrTooManyRequests: http.StatusTooManyRequests,
	ErrBadRequest:      http.StatusBadRequest,
	ErrServiceUnavail:  http.StatusServiceUnavailable,

	ErrCompletionUpstream: http.StatusBadGateway,
	ErrCompletionTimeout:  http.StatusGatewayTimeout,
	ErrCompletionParse:    http.StatusBadGateway,

	ErrSearchUpstream:   http.StatusBadGateway,
	ErrSearchNoProvider: http.StatusServiceUnavailable,

	ErrCitationDelegate: http.StatusBadGateway,

	ErrMemoryPersistence: http.StatusInternalServerError,
	ErrMemoryExport:      http.StatusInternalServerError,
}

// GetMessage returns the default message for a code
func GetMessage(code int) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown error (code %d)", code)
}

// GetHTTPStatus returns the HTTP status for a code
func GetHTTPStatus(code int) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
