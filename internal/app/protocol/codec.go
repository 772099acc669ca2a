package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformed is returned for frames that are not a well-formed envelope.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnknownVariant is returned for envelopes whose "type" tag is not known.
	ErrUnknownVariant = errors.New("unknown message variant")

	// ErrFrameTooLarge is returned by FrameReader for lines over its size limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// IsDecodeError reports whether err came from decoding a frame, as opposed to the transport.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrUnknownVariant)
}

// envelope is the wire shape of a Message.
type envelope struct {
	ID          string          `json:"id"`
	MessageType json.RawMessage `json:"message_type"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Encode renders m as a single frame terminated by '\n'. JSON escapes control
// characters inside strings, so the frame holds no other newline.
func Encode(m Message) ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("encode message %q: nil payload", m.ID)
	}

	tagged, err := marshalPayload(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", m.Payload.Type(), err)
	}

	data, err := json.Marshal(envelope{
		ID:          m.ID,
		MessageType: tagged,
		Timestamp:   m.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("encode message %q: %w", m.ID, err)
	}

	return append(data, '\n'), nil
}

// marshalPayload produces {"type":"<Tag>", ...fields}.
func marshalPayload(p Payload) ([]byte, error) {
	if list, ok := p.(UserList); ok && list.Users == nil {
		p = UserList{Users: []string{}}
	}

	fields, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	tag, err := json.Marshal(string(p.Type()))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(fields) > 2 {
		buf.WriteByte(',')
		buf.Write(fields[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode parses one frame. Surrounding whitespace, including the trailing newline,
// is ignored. Errors wrap ErrMalformed or ErrUnknownVariant.
func Decode(frame []byte) (Message, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return Message{}, fmt.Errorf("%w: empty frame", ErrMalformed)
	}

	var raw struct {
		ID          *string         `json:"id"`
		MessageType json.RawMessage `json:"message_type"`
		Timestamp   *time.Time      `json:"timestamp"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case raw.ID == nil:
		return Message{}, fmt.Errorf("%w: missing field id", ErrMalformed)
	case raw.Timestamp == nil:
		return Message{}, fmt.Errorf("%w: missing field timestamp", ErrMalformed)
	case len(raw.MessageType) == 0:
		return Message{}, fmt.Errorf("%w: missing field message_type", ErrMalformed)
	}

	payload, err := decodePayload(raw.MessageType)
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:        *raw.ID,
		Payload:   payload,
		Timestamp: *raw.Timestamp,
	}, nil
}

func decodePayload(data json.RawMessage) (Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: message_type is not an object", ErrMalformed)
	}

	rawTag, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("%w: missing field type", ErrMalformed)
	}

	var tag string
	if err := json.Unmarshal(rawTag, &tag); err != nil {
		return nil, fmt.Errorf("%w: type tag is not a string", ErrMalformed)
	}

	switch MessageType(tag) {
	case TypeRegister:
		return decodeAs[Register](data, fields, "username")
	case TypeSendMessage:
		return decodeAs[SendMessage](data, fields, "content")
	case TypeListUsers:
		return ListUsers{}, nil
	case TypeDisconnect:
		return Disconnect{}, nil
	case TypeRegisterSuccess:
		return decodeAs[RegisterSuccess](data, fields, "user_id")
	case TypeRegisterError:
		return decodeAs[RegisterError](data, fields, "reason")
	case TypeMessageReceived:
		return decodeAs[MessageReceived](data, fields, "from", "content", "timestamp")
	case TypeUserList:
		return decodeAs[UserList](data, fields, "users")
	case TypeUserJoined:
		return decodeAs[UserJoined](data, fields, "username")
	case TypeUserLeft:
		return decodeAs[UserLeft](data, fields, "username")
	case TypeError:
		return decodeAs[Error](data, fields, "message")
	case TypePing:
		return Ping{}, nil
	case TypePong:
		return Pong{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, tag)
	}
}

// decodeAs checks that every required field is present and not null, then
// unmarshals data into a T.
func decodeAs[T Payload](data json.RawMessage, fields map[string]json.RawMessage, required ...string) (Payload, error) {
	var p T
	for _, name := range required {
		v, ok := fields[name]
		if !ok || string(v) == "null" {
			return nil, fmt.Errorf("%w: %s: missing field %s", ErrMalformed, p.Type(), name)
		}
	}

	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, p.Type(), err)
	}
	return p, nil
}
