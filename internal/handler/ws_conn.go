package handler

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"linechat/internal/app/chat"
)

// closeGrace bounds the close handshake write.
const closeGrace = time.Second

// WSConn carries one protocol frame per WebSocket text message.
type WSConn struct {
	conn       *websocket.Conn
	remoteAddr string
	opts       chat.ConnOptions

	closeOnce sync.Once
	closeErr  error
}

// NewWSConn wraps an upgraded connection. remoteAddr is the client address as
// seen by the router, which may differ from the socket peer behind a proxy.
func NewWSConn(conn *websocket.Conn, remoteAddr string, opts chat.ConnOptions) *WSConn {
	if opts.MaxFrameBytes > 0 {
		conn.SetReadLimit(int64(opts.MaxFrameBytes))
	}

	return &WSConn{
		conn:       conn,
		remoteAddr: remoteAddr,
		opts:       opts,
	}
}

// ReadFrame returns the next data message. A peer close maps to io.EOF; an
// oversized message ends the connection because gorilla cannot resume after it.
func (c *WSConn) ReadFrame() ([]byte, error) {
	for {
		if c.opts.IdleTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout)); err != nil {
				return nil, err
			}
		}

		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil, io.EOF
			}
			return nil, err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		return bytes.TrimRight(data, "\r\n"), nil
	}
}

func (c *WSConn) WriteFrame(frame []byte) error {
	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(frame, []byte("\n")))
}

// Close sends a close message and closes the socket. Safe to call repeatedly.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// Best effort: the peer may already be gone.
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *WSConn) RemoteAddr() string {
	return c.remoteAddr
}
