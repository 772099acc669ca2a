package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"linechat/internal/app/protocol"
	"linechat/internal/pkg/logx"
)

// maxServerFrame bounds frames read from the server.
const maxServerFrame = 1 << 20

// ErrConnectionLost is returned by Run when the server closes the connection.
var ErrConnectionLost = errors.New("connection closed by server")

// Client connects one terminal to a chat server.
type Client struct {
	conn net.Conn
	in   io.Reader

	// outMu serializes writes to out.
	outMu sync.Mutex
	out   io.Writer

	// connMu serializes frame writes; pings are answered from the read loop.
	connMu sync.Mutex

	authenticated atomic.Bool

	logger zerolog.Logger
}

// New creates a Client reading commands from in and printing to out.
func New(conn net.Conn, in io.Reader, out io.Writer) *Client {
	return &Client{
		conn:   conn,
		in:     in,
		out:    out,
		logger: logx.Component("client"),
	}
}

// Authenticated reports whether the server accepted a registration.
func (c *Client) Authenticated() bool {
	return c.authenticated.Load()
}

// Run processes input lines until /quit, end of input or ctx cancellation, all
// of which return nil, or until the connection fails. The connection is closed on return.
func (c *Client) Run(ctx context.Context) error {
	defer c.conn.Close()

	c.println(Help)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- c.readServer()
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.send(protocol.Disconnect{})
			return nil

		case err := <-serverDone:
			c.println("connection closed by server")
			if err != nil {
				c.logger.Debug().Err(err).Msg("Server read loop ended.")
			}
			return ErrConnectionLost

		case line, ok := <-lines:
			if !ok {
				c.send(protocol.Disconnect{})
				return nil
			}

			cmd := ParseCommand(line, c.Authenticated())
			if cmd.Notice != "" {
				c.println(cmd.Notice)
			}
			if cmd.Payload != nil {
				if err := c.send(cmd.Payload); err != nil {
					c.println("connection lost")
					return fmt.Errorf("send: %w", err)
				}
			}
			if cmd.Quit {
				c.println("bye")
				return nil
			}
		}
	}
}

// readServer prints server messages until the connection ends.
func (c *Client) readServer() error {
	frames := protocol.NewFrameReader(c.conn, maxServerFrame)
	for {
		frame, err := frames.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				c.logger.Warn().Msg("Server sent an oversized frame.")
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(frame) == 0 {
			continue
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			c.println(fmt.Sprintf("unreadable server message: %v", err))
			continue
		}

		if !msg.Type().ServerToClient() {
			c.logger.Warn().Str("msg_type", string(msg.Type())).Msg("Server sent a client-only message type.")
			continue
		}

		switch msg.Payload.(type) {
		case protocol.RegisterSuccess:
			c.authenticated.Store(true)
		case protocol.Ping:
			if err := c.send(protocol.Pong{}); err != nil {
				return err
			}
			continue
		}

		c.println(Render(msg))
	}
}

func (c *Client) send(payload protocol.Payload) error {
	frame, err := protocol.Encode(protocol.NewMessage(payload))
	if err != nil {
		return err
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	_, err = c.conn.Write(frame)
	return err
}

func (c *Client) println(text string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	fmt.Fprintln(c.out, text)
}
