package httpd

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"dqx0.com/go/testhttpd/internal/obs"
)

const (
	// DefaultMaxConn caps concurrently open connections.
	DefaultMaxConn = 16
	// DefaultIdleTimeout is the per-connection inactivity window.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultMaxBodyBytes caps a request body.
	DefaultMaxBodyBytes = 10 << 20
)

// Server is a single HTTP/1.0 test server instance. Connection and timer
// state is per instance, owned by the listener, never process-wide.
type Server struct {
	// Addr is the listen address for ListenAndServe. Empty means
	// "127.0.0.1:0" (an ephemeral port on loopback).
	Addr string
	// MaxConn bounds concurrently open connections; connections beyond it
	// are dropped at admission without a response. Zero means
	// DefaultMaxConn.
	MaxConn int
	// IdleTimeout is the inactivity window after which a connection is
	// forcibly closed mid-phase. Zero means DefaultIdleTimeout.
	IdleTimeout time.Duration
	// MaxBodyBytes caps the declared Content-Length of a request. A
	// connection announcing a larger body is torn down without a response;
	// the declared length must never drive an allocation. Zero means
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// Custom, when set, gets first claim on every request before the fixed
	// route table.
	Custom CustomHandler

	Logger obs.Logger
	Meter  obs.Meter

	reg    *registry
	delays *delayScheduler
	nextID atomic.Uint64

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

// ListenAndServe binds Addr and serves until the listener fails or the
// server is closed. Failure to bind is the only startup-fatal condition.
func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs the accept loop on l. Each accepted connection passes admission
// control before any byte is read; admitted connections are served on their
// own goroutine.
func (s *Server) Serve(l net.Listener) error {
	s.initState()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.ln = l
	s.mu.Unlock()

	s.logf(obs.Info, "listening on %s (maxconn=%d timeout=%s)", l.Addr(), s.maxConn(), s.idleTimeout())
	defer l.Close()
	for {
		rwc, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			return err
		}
		c := s.newConn(rwc)
		if !s.reg.tryAdmit(c) {
			// Pool at capacity: never registered, no bytes read, no
			// response. The idle timer armed in newConn must not outlive
			// the refusal.
			c.idle.Stop()
			_ = rwc.Close()
			s.logf(obs.Info, "conn %d from %s: %v", c.id, rwc.RemoteAddr(), ErrAdmissionRejected)
			s.metricCounter("httpd_conns_rejected", 1)
			continue
		}
		s.metricCounter("httpd_conns_accepted", 1)
		go c.serve()
	}
}

// BoundAddr reports the listener address, nil before Serve.
func (s *Server) BoundAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting and tears down every live connection. Idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	reg := s.reg
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	if reg != nil {
		for _, c := range reg.snapshot() {
			c.close()
		}
	}
	if err != nil && errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// initState lazily creates the per-instance registry and delay scheduler.
func (s *Server) initState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reg == nil {
		s.reg = newRegistry(s.maxConn())
		s.delays = newDelayScheduler()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) maxConn() int {
	if s.MaxConn <= 0 {
		return DefaultMaxConn
	}
	return s.MaxConn
}

func (s *Server) maxBodyBytes() int64 {
	if s.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return s.MaxBodyBytes
}

func (s *Server) idleTimeout() time.Duration {
	if s.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return s.IdleTimeout
}

func (s *Server) logf(level obs.Level, format string, args ...interface{}) {
	lg := s.Logger
	if lg == nil {
		lg = obs.NopLogger{}
	}
	lg.Logf(level, format, args...)
}

func (s *Server) metricCounter(name string, value float64, labels ...obs.Label) {
	s.getMeter().Counter(name, value, labels...)
}

func (s *Server) metricHistogram(name string, value float64, labels ...obs.Label) {
	s.getMeter().Histogram(name, value, labels...)
}

func (s *Server) getMeter() obs.Meter {
	if s.Meter != nil {
		return s.Meter
	}
	return obs.NopMeter{}
}
