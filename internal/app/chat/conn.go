package chat

import (
	"net"
	"sync"
	"time"

	"linechat/internal/app/protocol"
)

// Conn is a frame-oriented transport for one session. ReadFrame is called by one
// goroutine and WriteFrame by another; Close may be called from any goroutine,
// any number of times, and must unblock both.
type Conn interface {
	// ReadFrame returns the next inbound frame without its terminator.
	// protocol.ErrFrameTooLarge is recoverable; any other error ends the session.
	ReadFrame() ([]byte, error)

	// WriteFrame sends one encoded frame.
	WriteFrame(frame []byte) error

	Close() error

	RemoteAddr() string
}

// ConnOptions tunes a StreamConn.
type ConnOptions struct {
	// MaxFrameBytes bounds an inbound line.
	MaxFrameBytes int

	// IdleTimeout closes the read side after this long without a frame. Zero disables it.
	IdleTimeout time.Duration

	// WriteTimeout bounds each frame write. Zero disables it.
	WriteTimeout time.Duration
}

// StreamConn carries newline-delimited frames over a net.Conn.
type StreamConn struct {
	conn   net.Conn
	frames *protocol.FrameReader
	opts   ConnOptions

	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn wraps conn.
func NewStreamConn(conn net.Conn, opts ConnOptions) *StreamConn {
	return &StreamConn{
		conn:   conn,
		frames: protocol.NewFrameReader(conn, opts.MaxFrameBytes),
		opts:   opts,
	}
}

func (c *StreamConn) ReadFrame() ([]byte, error) {
	if c.opts.IdleTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout)); err != nil {
			return nil, err
		}
	}
	return c.frames.ReadFrame()
}

func (c *StreamConn) WriteFrame(frame []byte) error {
	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write(frame)
	return err
}

func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *StreamConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
