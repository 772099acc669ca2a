package chat

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linechat/internal/app/protocol"
)

func TestSessionScenario(t *testing.T) {
	reg := NewRegistry(64)
	a := startSession(t, reg, SessionConfig{})
	b := startSession(t, reg, SessionConfig{})

	a.register("nina")

	b.send(protocol.Register{Username: "nina"})
	regErr := waitFor[protocol.RegisterError](b)
	assert.Equal(t, "username already taken", regErr.Reason)

	b.register("leo")

	a.send(protocol.SendMessage{Content: "hello"})
	for _, p := range []*peer{a, b} {
		mr := waitFor[protocol.MessageReceived](p)
		assert.Equal(t, "nina", mr.From)
		assert.Equal(t, "hello", mr.Content)
	}

	b.send(protocol.ListUsers{})
	list := waitFor[protocol.UserList](b)
	assert.ElementsMatch(t, []string{"nina", "leo"}, list.Users)

	a.send(protocol.Disconnect{})
	left := waitFor[protocol.UserLeft](b)
	assert.Equal(t, "nina", left.Username)

	a.waitClosed()
	assert.Equal(t, []string{"leo"}, reg.ListUsers())
}

func TestSessionBroadcastReachesEverySubscriberOnce(t *testing.T) {
	reg := NewRegistry(64)
	bob := startSession(t, reg, SessionConfig{})
	watcher := startSession(t, reg, SessionConfig{})

	bob.register("bob")
	bob.send(protocol.SendMessage{Content: "hi"})
	bob.send(protocol.Ping{})
	watcher.send(protocol.ListUsers{})

	for _, p := range []*peer{bob, watcher} {
		count := 0
		deadline := time.After(300 * time.Millisecond)
	drain:
		for {
			select {
			case m := <-p.in:
				if mr, ok := m.Payload.(protocol.MessageReceived); ok {
					assert.Equal(t, "bob", mr.From)
					assert.Equal(t, "hi", mr.Content)
					count++
				}
			case <-deadline:
				break drain
			}
		}
		assert.Equal(t, 1, count)
	}
}

func TestSessionRejectsUnauthenticatedSend(t *testing.T) {
	reg := NewRegistry(64)
	sub := reg.Subscribe()
	defer sub.Close()

	p := startSession(t, reg, SessionConfig{})
	p.send(protocol.SendMessage{Content: "anyone?"})

	reply := waitFor[protocol.Error](p)
	assert.Equal(t, "not authenticated", reply.Message)
	assert.Empty(t, received(sub), "nothing may be broadcast")
	assert.Equal(t, 0, reg.Count())
}

func TestSessionListUsersBeforeRegister(t *testing.T) {
	reg := NewRegistry(64)
	_, err := reg.Register("nina")
	require.Nil(t, err)

	p := startSession(t, reg, SessionConfig{})
	p.send(protocol.ListUsers{})

	list := waitFor[protocol.UserList](p)
	assert.Equal(t, []string{"nina"}, list.Users)
}

func TestSessionRejectsSecondRegister(t *testing.T) {
	reg := NewRegistry(64)
	p := startSession(t, reg, SessionConfig{})

	p.register("nina")
	p.send(protocol.Register{Username: "other"})

	reply := waitFor[protocol.Error](p)
	assert.Equal(t, "already authenticated", reply.Message)
	assert.Equal(t, []string{"nina"}, reg.ListUsers())
}

func TestSessionInvalidUsername(t *testing.T) {
	reg := NewRegistry(64)
	p := startSession(t, reg, SessionConfig{})

	p.send(protocol.Register{Username: ""})
	reply := waitFor[protocol.RegisterError](p)
	assert.Equal(t, "invalid username", reply.Reason)

	p.register("nina")
}

func TestSessionSurvivesBadFrames(t *testing.T) {
	reg := NewRegistry(64)
	p := startSession(t, reg, SessionConfig{})

	p.sendRaw("this is not json\n")
	reply := waitFor[protocol.Error](p)
	assert.True(t, strings.HasPrefix(reply.Message, "invalid message"), reply.Message)

	p.sendRaw(`{"id":"x","message_type":{"type":"Teleport"},"timestamp":"2026-01-01T00:00:00Z"}` + "\n")
	reply = waitFor[protocol.Error](p)
	assert.Contains(t, reply.Message, "Teleport")

	p.send(protocol.UserJoined{Username: "spoof"})
	reply = waitFor[protocol.Error](p)
	assert.Equal(t, "unsupported message type: UserJoined", reply.Message)

	p.sendRaw(strings.Repeat("x", 4096) + "\n")
	reply = waitFor[protocol.Error](p)
	assert.Equal(t, "message too large", reply.Message)

	p.sendRaw("\n\n")
	p.send(protocol.Ping{})
	waitFor[protocol.Pong](p)
}

func TestSessionRateLimitsMessages(t *testing.T) {
	reg := NewRegistry(64)
	p := startSession(t, reg, SessionConfig{MessageRate: 0.001, MessageBurst: 1})

	p.register("nina")
	p.send(protocol.SendMessage{Content: "one"})
	waitFor[protocol.MessageReceived](p)

	p.send(protocol.SendMessage{Content: "two"})
	reply := waitFor[protocol.Error](p)
	assert.Equal(t, "rate limit exceeded", reply.Message)
}

func TestSessionCleanupOnTransportClose(t *testing.T) {
	reg := NewRegistry(64)
	watcher := reg.Subscribe()
	defer watcher.Close()

	p := startSession(t, reg, SessionConfig{})
	p.register("nina")
	require.Equal(t, 2, reg.broadcast.Len())

	p.conn.Close()

	select {
	case <-p.done:
	case <-time.After(waitTimeout):
		t.Fatal("session did not stop")
	}

	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, 1, reg.broadcast.Len(), "the session subscription must be released")

	var left bool
	for _, m := range received(watcher) {
		if ul, ok := m.Payload.(protocol.UserLeft); ok && ul.Username == "nina" {
			left = true
		}
	}
	assert.True(t, left)
}

func TestSessionDisconnectBeforeRegister(t *testing.T) {
	reg := NewRegistry(64)
	p := startSession(t, reg, SessionConfig{})

	p.send(protocol.Disconnect{})
	p.waitClosed()
	assert.Equal(t, 0, reg.Count())
}

func TestSessionRejectsEveryServerOnlyType(t *testing.T) {
	reg := NewRegistry(64)
	p := startSession(t, reg, SessionConfig{})

	serverOnly := []protocol.Payload{
		protocol.RegisterSuccess{UserID: "u1"},
		protocol.RegisterError{Reason: "x"},
		protocol.MessageReceived{From: "x", Content: "y", Timestamp: time.Now().UTC()},
		protocol.UserList{Users: []string{"x"}},
		protocol.UserLeft{Username: "x"},
		protocol.Error{Message: "x"},
	}
	for _, payload := range serverOnly {
		msg := protocol.NewMessage(payload)
		require.False(t, msg.Type().ClientToServer())

		p.send(payload)
		reply := waitFor[protocol.Error](p)
		assert.Equal(t, "unsupported message type: "+string(msg.Type()), reply.Message)
	}
	assert.Zero(t, reg.Count())
}

// brokenWriterConn delivers queued frames and fails every write after a delay.
type brokenWriterConn struct {
	frames chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newBrokenWriterConn(frames ...[]byte) *brokenWriterConn {
	c := &brokenWriterConn{frames: make(chan []byte, len(frames)), closed: make(chan struct{})}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

func (c *brokenWriterConn) ReadFrame() ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

func (c *brokenWriterConn) WriteFrame([]byte) error {
	time.Sleep(5 * time.Millisecond)
	return errors.New("broken pipe")
}

func (c *brokenWriterConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *brokenWriterConn) RemoteAddr() string { return "pipe" }

func TestSessionWriteFailureAfterRegister(t *testing.T) {
	for i := 0; i < 20; i++ {
		reg := NewRegistry(16)

		frame, err := protocol.Encode(protocol.NewMessage(protocol.Register{Username: "nina"}))
		require.NoError(t, err)
		conn := newBrokenWriterConn(frame[:len(frame)-1])

		done := make(chan struct{})
		go func() {
			defer close(done)
			NewSession(conn, reg, SessionConfig{}).Serve(context.Background())
		}()

		select {
		case <-done:
		case <-time.After(waitTimeout):
			t.Fatal("session did not end after a write failure")
		}
		assert.Zero(t, reg.Count())
	}
}
