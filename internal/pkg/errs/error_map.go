package errs

import "net/http"

var errorMap = map[int]CustomError{
	// 1xxx
	ErrMalformedFrame:     {Code: ErrMalformedFrame, Message: "invalid message: %v"},
	ErrFrameTooLarge:      {Code: ErrFrameTooLarge, Message: "message too large"},
	ErrRateLimitExceeded:  {Code: ErrRateLimitExceeded, Message: "rate limit exceeded", Status: http.StatusTooManyRequests},
	ErrUnsupportedMessage: {Code: ErrUnsupportedMessage, Message: "unsupported message type: %s"},

	// 3xxx
	ErrNotAuthenticated:     {Code: ErrNotAuthenticated, Message: "not authenticated", Status: http.StatusUnauthorized},
	ErrAlreadyAuthenticated: {Code: ErrAlreadyAuthenticated, Message: "already authenticated"},
	ErrUsernameTaken:        {Code: ErrUsernameTaken, Message: "username already taken", Status: http.StatusConflict},
	ErrInvalidUsername:      {Code: ErrInvalidUsername, Message: "invalid username"},
	ErrServerShuttingDown:   {Code: ErrServerShuttingDown, Message: "server is shutting down", Status: http.StatusServiceUnavailable},

	// 5xxx
	ErrUnknown: {Code: ErrUnknown, Message: "internal server error", Status: http.StatusInternalServerError},
}
