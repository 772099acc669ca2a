package client

import (
	"fmt"
	"strings"

	"linechat/internal/app/protocol"
)

// Render formats a server message for display.
func Render(m protocol.Message) string {
	switch p := m.Payload.(type) {
	case protocol.RegisterSuccess:
		return fmt.Sprintf("registered (id: %s)", p.UserID)
	case protocol.RegisterError:
		return fmt.Sprintf("registration failed: %s", p.Reason)
	case protocol.MessageReceived:
		return fmt.Sprintf("[%s] %s: %s", p.Timestamp.Local().Format("15:04:05"), p.From, p.Content)
	case protocol.UserList:
		var b strings.Builder
		fmt.Fprintf(&b, "connected users (%d):", len(p.Users))
		for _, name := range p.Users {
			fmt.Fprintf(&b, "\n  - %s", name)
		}
		return b.String()
	case protocol.UserJoined:
		return fmt.Sprintf("-> %s joined the chat", p.Username)
	case protocol.UserLeft:
		return fmt.Sprintf("<- %s left the chat", p.Username)
	case protocol.Error:
		return fmt.Sprintf("error: %s", p.Message)
	case protocol.Pong:
		return "pong"
	default:
		return fmt.Sprintf("unexpected message: %s", m.Type())
	}
}
