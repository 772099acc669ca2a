package user

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUsername(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "nina", want: "nina", ok: true},
		{in: "  leo \t", want: "leo", ok: true},
		{in: "Zoë", want: "Zoë", ok: true},
		{in: "", ok: false},
		{in: "   ", ok: false},
		{in: "bad\x07name", want: "bad\x07name", ok: false},
		{in: strings.Repeat("é", MaxUsernameLength), want: strings.Repeat("é", MaxUsernameLength), ok: true},
		{in: strings.Repeat("a", MaxUsernameLength+1), want: strings.Repeat("a", MaxUsernameLength+1), ok: false},
	}

	for _, tc := range cases {
		got, ok := NormalizeUsername(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got)
		}
	}
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "unknown", SessionState(42).String())
}
