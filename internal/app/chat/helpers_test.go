package chat

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linechat/internal/app/protocol"
)

const waitTimeout = 2 * time.Second

// peer is the client side of a session under test.
type peer struct {
	t    *testing.T
	conn net.Conn
	in   chan protocol.Message
	done chan struct{}
}

func newPeer(t *testing.T, conn net.Conn) *peer {
	t.Helper()

	p := &peer{t: t, conn: conn, in: make(chan protocol.Message, 256)}
	go func() {
		defer close(p.in)
		r := protocol.NewFrameReader(conn, 1<<16)
		for {
			frame, err := r.ReadFrame()
			if err != nil {
				return
			}
			m, err := protocol.Decode(frame)
			if err != nil {
				continue
			}
			p.in <- m
		}
	}()
	return p
}

// startSession runs a Session over net.Pipe and returns its client side.
func startSession(t *testing.T, reg *Registry, cfg SessionConfig) *peer {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	sess := NewSession(NewStreamConn(serverSide, ConnOptions{MaxFrameBytes: 1024}), reg, cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Serve(context.Background())
	}()

	p := newPeer(t, clientSide)
	p.done = done

	t.Cleanup(func() {
		clientSide.Close()
		select {
		case <-done:
		case <-time.After(waitTimeout):
			t.Error("session did not stop after its connection closed")
		}
	})
	return p
}

func (p *peer) send(payload protocol.Payload) {
	p.t.Helper()
	frame, err := protocol.Encode(protocol.NewMessage(payload))
	require.NoError(p.t, err)
	p.sendRaw(string(frame))
}

func (p *peer) sendRaw(frame string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetWriteDeadline(time.Now().Add(waitTimeout)))
	_, err := p.conn.Write([]byte(frame))
	require.NoError(p.t, err)
}

// next returns the next inbound message.
func (p *peer) next() protocol.Message {
	p.t.Helper()
	select {
	case m, ok := <-p.in:
		require.True(p.t, ok, "connection closed while waiting for a message")
		return m
	case <-time.After(waitTimeout):
		p.t.Fatal("timed out waiting for a message")
		return protocol.Message{}
	}
}

// waitFor skips inbound messages until one carries a T payload.
func waitFor[T protocol.Payload](p *peer) T {
	p.t.Helper()
	for {
		if payload, ok := p.next().Payload.(T); ok {
			return payload
		}
	}
}

// waitClosed waits until the server side closed the connection.
func (p *peer) waitClosed() {
	p.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-p.in:
			if !ok {
				return
			}
		case <-deadline:
			p.t.Fatal("connection was not closed by the server")
			return
		}
	}
}

// register registers name and waits for the success reply.
func (p *peer) register(name string) string {
	p.t.Helper()
	p.send(protocol.Register{Username: name})
	return waitFor[protocol.RegisterSuccess](p).UserID
}
