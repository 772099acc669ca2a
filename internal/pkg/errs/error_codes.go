/*
Package errs provides custom error types and application-level error code constants.

These codes identify protocol, session and system errors both inside the server
and in the Error/RegisterError replies sent to chat clients.
*/
package errs

// 1xxx: Frame and request handling errors
const (
	// ErrMalformedFrame indicates that an inbound frame could not be decoded.
	ErrMalformedFrame = 1003

	// ErrFrameTooLarge indicates that an inbound frame exceeded the configured size limit.
	ErrFrameTooLarge = 1006

	// ErrRateLimitExceeded indicates that the sender exceeded its allowed rate.
	ErrRateLimitExceeded = 1007

	// ErrUnsupportedMessage indicates a message type not valid in the direction it was received.
	ErrUnsupportedMessage = 1008
)

// 3xxx: Session and registration errors
const (
	// ErrNotAuthenticated indicates an action that requires a registered name.
	ErrNotAuthenticated = 3001

	// ErrAlreadyAuthenticated indicates a second Register on an authenticated session.
	ErrAlreadyAuthenticated = 3002

	// ErrUsernameTaken indicates that the requested name is reserved by a live user.
	ErrUsernameTaken = 3003

	// ErrInvalidUsername indicates an empty or oversized username.
	ErrInvalidUsername = 3004

	// ErrServerShuttingDown indicates the server no longer accepts sessions.
	ErrServerShuttingDown = 3005
)

// 5xxx: Internal system errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
