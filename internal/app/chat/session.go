package chat

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"linechat/internal/app/protocol"
	"linechat/internal/app/user"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/randx"
)

// SessionConfig tunes the per-connection behaviour of a Session.
type SessionConfig struct {
	// SendQueueSize is the capacity of the direct reply queue.
	SendQueueSize int

	// MessageRate and MessageBurst bound SendMessage per session. A zero rate disables the limit.
	MessageRate  float64
	MessageBurst int
}

const defaultSendQueueSize = 256

// Session is the connection handler of one client. A read loop applies the
// protocol against the Registry, and a write loop is the only writer to the
// connection: it serializes direct replies and relayed broadcasts.
type Session struct {
	id       string
	conn     Conn
	registry *Registry

	// sub is opened when the session is created, before any frame is read.
	sub *Subscription

	// send queues direct replies for the write loop. Only the read loop sends
	// on it, and closes it when it exits.
	send chan protocol.Message

	// limiter bounds SendMessage; nil means unlimited.
	limiter *rate.Limiter

	// state, userID, username and userLogger belong to the read loop.
	state      user.SessionState
	userID     string
	username   string
	userLogger zerolog.Logger

	// logger is shared by all goroutines of the session and never reassigned.
	logger zerolog.Logger
}

// NewSession binds conn to registry and subscribes it to the broadcast stream.
func NewSession(conn Conn, registry *Registry, cfg SessionConfig) *Session {
	queueSize := cfg.SendQueueSize
	if queueSize < 1 {
		queueSize = defaultSendQueueSize
	}

	var limiter *rate.Limiter
	if cfg.MessageRate > 0 {
		burst := cfg.MessageBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.MessageRate), burst)
	}

	id := randx.ConnID()
	logger := logx.Logger().With().
		Str("conn_id", id).
		Str("remote_addr", conn.RemoteAddr()).
		Logger()

	return &Session{
		id:       id,
		conn:     conn,
		registry: registry,
		sub:      registry.Subscribe(),
		send:     make(chan protocol.Message, queueSize),
		limiter:  limiter,
		state:      user.StateConnected,
		userLogger: logger,
		logger:     logger,
	}
}

// ID returns the connection id used in logs.
func (s *Session) ID() string {
	return s.id
}

// Serve runs the session until the client disconnects, the transport fails or
// ctx is cancelled. On return the user is removed from the registry, both loops
// have stopped and the connection is closed.
func (s *Session) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info().Msg("Session started.")

	// Cancelling ctx closes the connection, which unblocks a pending read or write.
	go func() {
		<-ctx.Done()
		s.closeConn()
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		s.writePump(ctx)
	}()

	s.readPump(ctx)

	s.state = user.StateDisconnected
	if s.userID != "" {
		s.registry.Remove(s.userID)
	}

	// Lets the write loop flush pending replies and exit.
	close(s.send)
	<-writerDone

	s.sub.Close()
	cancel()
	s.closeConn()

	s.userLogger.Info().
		Int64("dropped_broadcasts", s.sub.Dropped()).
		Msg("Session ended.")
}

// readPump reads and handles frames until the session ends.
func (s *Session) readPump(ctx context.Context) {
	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				s.userLogger.Warn().Msg("Client sent an oversized frame.")
				if !s.reply(ctx, protocol.NewError(errs.NewError(errs.ErrFrameTooLarge).Message)) {
					return
				}
				continue
			}
			s.logReadError(ctx, err)
			return
		}

		if len(frame) == 0 {
			continue
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			s.userLogger.Warn().Err(err).Int("frame_bytes", len(frame)).Msg("Client sent an invalid frame.")
			if !s.reply(ctx, protocol.NewError(errs.NewError(errs.ErrMalformedFrame, err).Message)) {
				return
			}
			continue
		}

		if payload := s.handle(msg); payload != nil {
			if !s.reply(ctx, protocol.NewMessage(payload)) {
				return
			}
		}

		if s.state == user.StateDisconnected {
			return
		}
	}
}

// handle applies one inbound message to the session state and returns the
// direct reply, if any.
func (s *Session) handle(msg protocol.Message) protocol.Payload {
	if !msg.Type().ClientToServer() {
		s.userLogger.Warn().Str("msg_type", string(msg.Type())).Msg("Client sent a server-only message type.")
		return errorPayload(errs.ErrUnsupportedMessage, msg.Type())
	}

	switch p := msg.Payload.(type) {
	case protocol.Register:
		return s.handleRegister(p)

	case protocol.SendMessage:
		if s.state != user.StateAuthenticated {
			return errorPayload(errs.ErrNotAuthenticated)
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.userLogger.Warn().Msg("Message rate limit exceeded.")
			return errorPayload(errs.ErrRateLimitExceeded)
		}
		s.registry.Broadcast(s.username, p.Content)
		return nil

	case protocol.ListUsers:
		return protocol.UserList{Users: s.registry.ListUsers()}

	case protocol.Disconnect:
		s.userLogger.Debug().Msg("Client requested disconnect.")
		s.state = user.StateDisconnected
		return nil

	case protocol.Ping:
		return protocol.Pong{}

	case protocol.Pong:
		return nil

	default:
		return errorPayload(errs.ErrUnsupportedMessage, msg.Type())
	}
}

func (s *Session) handleRegister(p protocol.Register) protocol.Payload {
	if s.state != user.StateConnected {
		return errorPayload(errs.ErrAlreadyAuthenticated)
	}

	u, cerr := s.registry.Register(p.Username)
	if cerr != nil {
		return protocol.RegisterError{Reason: cerr.Message}
	}

	s.state = user.StateAuthenticated
	s.userID = u.ID
	s.username = u.Username
	s.userLogger = s.logger.With().
		Str("user_id", u.ID).
		Str("username", u.Username).
		Logger()

	return protocol.RegisterSuccess{UserID: u.ID}
}

// reply queues a direct reply. It returns false once the session is shutting down.
func (s *Session) reply(ctx context.Context, msg protocol.Message) bool {
	select {
	case s.send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// writePump writes queued replies and relayed broadcasts until the reply queue
// is closed, a write fails or ctx is cancelled.
func (s *Session) writePump(ctx context.Context) {
	relay := s.sub.C()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			if !s.write(msg) {
				return
			}

		case msg, ok := <-relay:
			if !ok {
				relay = nil
				continue
			}
			if !s.write(msg) {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) write(msg protocol.Message) bool {
	frame, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("msg_type", string(msg.Type())).Msg("Failed to encode outbound message.")
		return true
	}

	if err := s.conn.WriteFrame(frame); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.logger.Info().Err(err).Msg("Error writing frame.")
		}
		return false
	}
	return true
}

func (s *Session) logReadError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, io.EOF):
		s.userLogger.Debug().Msg("Client closed the connection.")
	case ctx.Err() != nil || errors.Is(err, net.ErrClosed):
		s.userLogger.Debug().Msg("Connection closed by the server.")
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			s.userLogger.Info().Msg("Connection idle timeout reached.")
			return
		}
		s.userLogger.Info().Err(err).Msg("Error reading frame.")
	}
}

func (s *Session) closeConn() {
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug().Err(err).Msg("Connection close error.")
	}
}

func errorPayload(code int, details ...any) protocol.Payload {
	return protocol.Error{Message: errs.NewError(code, details...).Message}
}
