package chat

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/app/protocol"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/limiter"
	"linechat/internal/pkg/logx"
)

const (
	// maxAcceptDelay caps the backoff after consecutive accept failures.
	maxAcceptDelay = time.Second

	// minAcceptDelay is the first backoff step after an accept failure.
	minAcceptDelay = 5 * time.Millisecond
)

// Options configures a Server.
type Options struct {
	Session SessionConfig
	Conn    ConnOptions

	// Admission limits new connections per client IP. Nil admits everyone.
	Admission *limiter.IPRateLimiter
}

// Stats is a point-in-time view of the server.
type Stats struct {
	ActiveSessions    int64 `json:"activeSessions"`
	TotalSessions     int64 `json:"totalSessions"`
	RejectedConns     int64 `json:"rejectedConns"`
	RegisteredUsers   int   `json:"registeredUsers"`
	DroppedBroadcasts int64 `json:"droppedBroadcasts"`
}

// Server accepts connections and runs one Session per connection, all bound to
// a shared Registry.
type Server struct {
	registry *Registry
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against Shutdown.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	active   atomic.Int64
	total    atomic.Int64
	rejected atomic.Int64

	logger zerolog.Logger
}

// NewServer creates a Server for registry.
func NewServer(registry *Registry, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		registry: registry,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logx.Component("server"),
	}
}

// Registry returns the registry shared by all sessions.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Serve accepts connections on ln until Shutdown is called or ln is closed.
// Other accept failures are logged and retried with a capped backoff.
func (s *Server) Serve(ln net.Listener) error {
	if !s.track() {
		return ErrServerClosed
	}
	defer s.wg.Done()

	stop := context.AfterFunc(s.ctx, func() {
		ln.Close()
	})
	defer stop()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Chat listener started.")

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info().Str("addr", ln.Addr().String()).Msg("Chat listener stopped.")
				return nil
			}

			delay = nextAcceptDelay(delay)
			s.logger.Error().Err(err).Dur("retry_in", delay).Msg("Accept failed.")

			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
			}
			continue
		}
		delay = 0

		remote := conn.RemoteAddr().String()
		if !s.Admit(remote) {
			conn.Close()
			continue
		}

		go s.ServeConn(NewStreamConn(conn, s.opts.Conn))
	}
}

// Admit applies the per-IP admission limit to a new connection from remoteAddr.
func (s *Server) Admit(remoteAddr string) bool {
	if s.opts.Admission == nil || s.opts.Admission.Allow(remoteAddr) {
		return true
	}

	s.rejected.Add(1)
	s.logger.Warn().
		Str("remote_ip", logx.AnonymizeIP(remoteAddr)).
		Msg("Connection rejected: rate limit exceeded.")
	return false
}

// ServeConn runs a Session on conn and blocks until it ends. After Shutdown
// the client is told the server is shutting down and the connection is closed.
func (s *Server) ServeConn(conn Conn) {
	if !s.track() {
		s.refuse(conn)
		return
	}
	defer s.wg.Done()

	s.active.Add(1)
	s.total.Add(1)
	defer s.active.Add(-1)

	NewSession(conn, s.registry, s.opts.Session).Serve(s.ctx)
}

// Stats returns current counters.
func (s *Server) Stats() Stats {
	return Stats{
		ActiveSessions:    s.active.Load(),
		TotalSessions:     s.total.Load(),
		RejectedConns:     s.rejected.Load(),
		RegisteredUsers:   s.registry.Count(),
		DroppedBroadcasts: s.registry.DroppedBroadcasts(),
	}
}

// Shutdown stops every listener and session and waits up to timeout for them
// to finish. It reports whether they all finished in time.
func (s *Server) Shutdown(timeout time.Duration) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info().Int64("active_sessions", s.active.Load()).Msg("Shutting down chat server...")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Chat server shutdown complete.")
		return true
	case <-time.After(timeout):
		s.logger.Warn().Dur("timeout", timeout).Msg("Chat server shutdown timed out.")
		return false
	}
}

// refuse sends a best-effort shutdown notice and closes conn.
func (s *Server) refuse(conn Conn) {
	defer conn.Close()

	notice := protocol.NewError(errs.NewError(errs.ErrServerShuttingDown).Message)
	frame, err := protocol.Encode(notice)
	if err != nil {
		return
	}
	if err := conn.WriteFrame(frame); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to send shutdown notice.")
	}
}

// track adds one unit to wg unless the server is shut down.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func nextAcceptDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return minAcceptDelay
	}
	delay *= 2
	if delay > maxAcceptDelay {
		delay = maxAcceptDelay
	}
	return delay
}
