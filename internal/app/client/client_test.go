package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linechat/internal/app/chat"
	"linechat/internal/app/protocol"
)

const waitTimeout = 2 * time.Second

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) eventuallyContains(t *testing.T, s string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return strings.Contains(b.String(), s)
	}, waitTimeout, 10*time.Millisecond, "output never contained %q:\n%s", s, b.String())
}

func startChatServer(t *testing.T) (*chat.Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := chat.NewServer(chat.NewRegistry(64), chat.Options{Conn: chat.ConnOptions{MaxFrameBytes: 4096}})
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown(waitTimeout) })

	return srv, ln.Addr().String()
}

func TestClientSession(t *testing.T) {
	srv, addr := startChatServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}

	c := New(conn, inR, out)
	result := make(chan error, 1)
	go func() { result <- c.Run(context.Background()) }()

	write := func(l string) {
		_, err := io.WriteString(inW, l+"\n")
		require.NoError(t, err)
	}

	write("hello")
	out.eventuallyContains(t, "register first with /register <name>")

	write("/register nina")
	out.eventuallyContains(t, "registered (id: ")
	assert.True(t, c.Authenticated())

	write("hi there")
	out.eventuallyContains(t, "nina: hi there")

	write("/users")
	out.eventuallyContains(t, "connected users (1):\n  - nina")

	write("/ping")
	out.eventuallyContains(t, "pong")

	write("/quit")
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("client did not exit after /quit")
	}

	assert.Eventually(t, func() bool {
		return srv.Registry().Count() == 0
	}, waitTimeout, 10*time.Millisecond)
}

func TestClientSeesRegisterError(t *testing.T) {
	srv, addr := startChatServer(t)
	_, cerr := srv.Registry().Register("nina")
	require.Nil(t, cerr)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}
	c := New(conn, io.MultiReader(strings.NewReader("/register nina\n"), inR), out)

	go c.Run(context.Background())

	out.eventuallyContains(t, "registration failed: username already taken")
	assert.False(t, c.Authenticated())
}

func TestClientEndOfInputQuits(t *testing.T) {
	_, addr := startChatServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	c := New(conn, strings.NewReader(""), io.Discard)
	assert.NoError(t, c.Run(context.Background()))
}

func TestClientServerDisconnect(t *testing.T) {
	serverSide, clientSide := net.Pipe()

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}

	result := make(chan error, 1)
	go func() { result <- New(clientSide, inR, out).Run(context.Background()) }()

	serverSide.Close()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(waitTimeout):
		t.Fatal("client did not notice the server going away")
	}
	out.eventuallyContains(t, "connection closed by server")
}

func TestClientIgnoresClientOnlyMessages(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}

	go New(clientSide, inR, out).Run(context.Background())

	for _, payload := range []protocol.Payload{
		protocol.Register{Username: "spoof"},
		protocol.UserJoined{Username: "leo"},
	} {
		frame, err := protocol.Encode(protocol.NewMessage(payload))
		require.NoError(t, err)
		require.NoError(t, serverSide.SetWriteDeadline(time.Now().Add(waitTimeout)))
		_, err = serverSide.Write(frame)
		require.NoError(t, err)
	}

	out.eventuallyContains(t, "-> leo joined the chat")
	assert.NotContains(t, out.String(), "spoof")
}
