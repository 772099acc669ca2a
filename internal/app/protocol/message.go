/*
Package protocol implements the chat wire format.

A Message is a JSON envelope {id, message_type, timestamp} whose message_type is an
object tagged by its "type" field. Each envelope travels as one newline-terminated
frame. Payload is a closed set of variant types; decoding an unknown tag yields
ErrUnknownVariant.
*/
package protocol

import (
	"time"

	"linechat/internal/pkg/randx"
)

// MessageType is the "type" tag of a message variant.
type MessageType string

// Client to server.
const (
	TypeRegister    MessageType = "Register"
	TypeSendMessage MessageType = "SendMessage"
	TypeListUsers   MessageType = "ListUsers"
	TypeDisconnect  MessageType = "Disconnect"
)

// Server to client.
const (
	TypeRegisterSuccess MessageType = "RegisterSuccess"
	TypeRegisterError   MessageType = "RegisterError"
	TypeMessageReceived MessageType = "MessageReceived"
	TypeUserList        MessageType = "UserList"
	TypeUserJoined      MessageType = "UserJoined"
	TypeUserLeft        MessageType = "UserLeft"
	TypeError           MessageType = "Error"
)

// Both directions.
const (
	TypePing MessageType = "Ping"
	TypePong MessageType = "Pong"
)

// ClientToServer reports whether a client may send this type.
func (t MessageType) ClientToServer() bool {
	switch t {
	case TypeRegister, TypeSendMessage, TypeListUsers, TypeDisconnect, TypePing, TypePong:
		return true
	}
	return false
}

// ServerToClient reports whether the server may send this type.
func (t MessageType) ServerToClient() bool {
	switch t {
	case TypeRegisterSuccess, TypeRegisterError, TypeMessageReceived, TypeUserList,
		TypeUserJoined, TypeUserLeft, TypeError, TypePing, TypePong:
		return true
	}
	return false
}

// Payload is implemented by the variant types of this package only.
type Payload interface {
	Type() MessageType
	isPayload()
}

type Register struct {
	Username string `json:"username"`
}

type SendMessage struct {
	Content string `json:"content"`
}

type ListUsers struct{}

type Disconnect struct{}

type RegisterSuccess struct {
	UserID string `json:"user_id"`
}

type RegisterError struct {
	Reason string `json:"reason"`
}

// MessageReceived is the broadcast of one chat line.
type MessageReceived struct {
	From      string    `json:"from"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UserList carries the names of the live users. Order carries no meaning.
type UserList struct {
	Users []string `json:"users"`
}

type UserJoined struct {
	Username string `json:"username"`
}

type UserLeft struct {
	Username string `json:"username"`
}

// Error reports a recoverable protocol failure to the peer.
type Error struct {
	Message string `json:"message"`
}

type Ping struct{}

type Pong struct{}

func (Register) Type() MessageType        { return TypeRegister }
func (SendMessage) Type() MessageType     { return TypeSendMessage }
func (ListUsers) Type() MessageType       { return TypeListUsers }
func (Disconnect) Type() MessageType      { return TypeDisconnect }
func (RegisterSuccess) Type() MessageType { return TypeRegisterSuccess }
func (RegisterError) Type() MessageType   { return TypeRegisterError }
func (MessageReceived) Type() MessageType { return TypeMessageReceived }
func (UserList) Type() MessageType        { return TypeUserList }
func (UserJoined) Type() MessageType      { return TypeUserJoined }
func (UserLeft) Type() MessageType        { return TypeUserLeft }
func (Error) Type() MessageType           { return TypeError }
func (Ping) Type() MessageType            { return TypePing }
func (Pong) Type() MessageType            { return TypePong }

func (Register) isPayload()        {}
func (SendMessage) isPayload()     {}
func (ListUsers) isPayload()       {}
func (Disconnect) isPayload()      {}
func (RegisterSuccess) isPayload() {}
func (RegisterError) isPayload()   {}
func (MessageReceived) isPayload() {}
func (UserList) isPayload()        {}
func (UserJoined) isPayload()      {}
func (UserLeft) isPayload()        {}
func (Error) isPayload()           {}
func (Ping) isPayload()            {}
func (Pong) isPayload()            {}

// Message is the unit of wire transfer and of broadcast distribution.
// Values are never mutated after construction.
type Message struct {
	ID        string
	Payload   Payload
	Timestamp time.Time
}

// NewMessage wraps payload in an envelope with a fresh id and the current UTC time.
func NewMessage(payload Payload) Message {
	return Message{
		ID:        randx.MessageID(),
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Type returns the variant tag of the payload, or "" for an empty message.
func (m Message) Type() MessageType {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Type()
}

// NewError builds an Error message.
func NewError(message string) Message {
	return NewMessage(Error{Message: message})
}
