/*
Package client implements the interactive chat client: it turns typed lines into
protocol messages and renders server messages as human-readable text.
*/
package client

import (
	"fmt"
	"strings"

	"linechat/internal/app/protocol"
)

// Help lists the interactive commands.
const Help = `Commands:
  /register <name>  register with a username
  /users            list connected users
  /ping             check the connection
  /help             show this help
  /quit             leave the chat
  <text>            send a message (after registering)`

// Command is the outcome of one input line.
type Command struct {
	// Payload is sent to the server when non-nil.
	Payload protocol.Payload

	// Notice is printed locally when non-empty.
	Notice string

	// Quit ends the session after Payload is sent.
	Quit bool
}

// ParseCommand interprets one input line. Free text becomes a SendMessage only
// once the client is authenticated.
func ParseCommand(line string, authenticated bool) Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}
	}

	if !strings.HasPrefix(line, "/") {
		if !authenticated {
			return Command{Notice: "register first with /register <name>"}
		}
		return Command{Payload: protocol.SendMessage{Content: line}}
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/register":
		if arg == "" {
			return Command{Notice: "usage: /register <name>"}
		}
		return Command{Payload: protocol.Register{Username: arg}}
	case "/users":
		return Command{Payload: protocol.ListUsers{}}
	case "/ping":
		return Command{Payload: protocol.Ping{}}
	case "/help":
		return Command{Notice: Help}
	case "/quit":
		return Command{Payload: protocol.Disconnect{}, Quit: true}
	default:
		return Command{Notice: fmt.Sprintf("unknown command: %s (try /help)", name)}
	}
}
