/*
Package randx generates the unique identifiers used by the chat server:
message ids, user ids and short connection ids for log correlation.
*/
package randx

import (
	"strings"

	"github.com/google/uuid"
)

// ConnIDLength is the number of hex characters kept for a connection id.
const ConnIDLength = 12

// MessageID generates a UUID v4 string identifying one protocol message.
func MessageID() string {
	return uuid.New().String()
}

// UserID generates a UUID v4 string identifying a registered user.
// Random v4 ids are not reused for the lifetime of a registry.
func UserID() string {
	return uuid.New().String()
}

// ConnID generates a short random id used to correlate the log lines of one connection.
func ConnID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:ConnIDLength]
}
