/*
Package user contains the identity of a registered chat participant and the
per-connection session states.
*/
package user

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// MaxUsernameLength is the maximum number of characters in a username.
const MaxUsernameLength = 32

// User is a live participant owned by the registry. It exists from a successful
// registration until its connection closes or it disconnects.
type User struct {
	// ID is the opaque registry-unique user id.
	ID string `json:"id"`

	// Username is unique among live users.
	Username string `json:"username"`

	// State is StateAuthenticated for every user held by the registry.
	State SessionState `json:"state"`

	// JoinedAt is when the name was reserved.
	JoinedAt time.Time `json:"joinedAt"`
}

// NormalizeUsername trims surrounding whitespace and reports whether the
// result is an acceptable name: non-empty, at most MaxUsernameLength
// characters and free of control characters.
func NormalizeUsername(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || !utf8.ValidString(name) || utf8.RuneCountInString(name) > MaxUsernameLength {
		return name, false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return name, false
		}
	}
	return name, true
}
