package httpd

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"dqx0.com/go/testhttpd/httpd/internal/wire"
	"dqx0.com/go/testhttpd/internal/obs"
)

// phase is the per-connection state. Ordering is strict and sequential
// within one connection; no phase is re-entered. phaseClosed is terminal and
// reachable from every other phase via idle timeout or I/O error.
type phase uint8

const (
	phaseRequestLine phase = iota
	phaseHeaders
	phaseBody
	phaseDispatch
	phaseResponding
	phaseAwaitingDelay
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseRequestLine:
		return "request-line"
	case phaseHeaders:
		return "headers"
	case phaseBody:
		return "body"
	case phaseDispatch:
		return "dispatch"
	case phaseResponding:
		return "responding"
	case phaseAwaitingDelay:
		return "awaiting-delay"
	case phaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// conn is one admitted connection. The serve goroutine owns it until it
// either closes or hands ownership to the delay scheduler; teardown may
// additionally be triggered by the idle timer, so close is guarded to run
// its cleanup exactly once.
type conn struct {
	id    uint64
	srv   *Server
	rwc   net.Conn
	bw    *bufio.Writer
	rd    *wire.Reader
	req   Request
	idle  *time.Timer
	start time.Time

	// st holds the current phase. The idle and delay timers read and
	// advance it from their own goroutines, hence the atomic.
	st atomic.Uint32

	closeMu sync.Mutex
	closed  bool
}

func (c *conn) setPhase(p phase)    { c.st.Store(uint32(p)) }
func (c *conn) currentPhase() phase { return phase(c.st.Load()) }

func (s *Server) newConn(rwc net.Conn) *conn {
	c := &conn{
		id:    s.nextID.Add(1),
		srv:   s,
		rwc:   rwc,
		bw:    bufio.NewWriter(rwc),
		rd:    &wire.Reader{BR: bufio.NewReader(rwc)},
		start: time.Now(),
	}
	c.idle = time.AfterFunc(s.idleTimeout(), c.onIdleTimeout)
	return c
}

// touch resets the inactivity window after read or write activity.
func (c *conn) touch() {
	c.idle.Reset(c.srv.idleTimeout())
}

func (c *conn) onIdleTimeout() {
	c.srv.logf(obs.Info, "conn %d: %v in phase %s", c.id, ErrIdleTimeout, c.currentPhase())
	c.srv.metricCounter("httpd_idle_timeouts", 1)
	c.close()
}

func (c *conn) serve() {
	res, done := c.handle()
	if !done {
		// I/O failure or forced teardown mid-phase: no response for
		// whatever was in flight.
		c.close()
		return
	}
	if res.deferred {
		c.setPhase(phaseAwaitingDelay)
		resp := res.resp
		// Arm the timer only if teardown has not already happened; a timer
		// scheduled for a closed connection would be a write-after-close.
		c.closeMu.Lock()
		if !c.closed {
			c.srv.delays.schedule(c.id, res.delay, func() { c.deliverDelayed(resp) })
		}
		c.closeMu.Unlock()
		// The connection keeps its registry slot; the delay timer or the
		// idle timer now owns teardown.
		return
	}
	c.setPhase(phaseResponding)
	c.writeResponse(res.resp)
	c.observeDone(res.route)
	c.close()
}

// handle drives the read phases and dispatch. done is false when the
// connection failed mid-phase and no response should be written.
func (c *conn) handle() (routeResult, bool) {
	c.setPhase(phaseRequestLine)
	line, raw, err := c.rd.ReadLine()
	if err != nil {
		c.srv.logf(obs.Debug, "conn %d: read request line: %v", c.id, err)
		return routeResult{}, false
	}
	c.touch()
	c.req.RawLine = raw

	method, target, proto, ok := wire.ParseRequestLine(line)
	if !ok {
		// Malformed request line: skip the remaining phases and answer 400.
		c.srv.logf(obs.Info, "conn %d: %v: %q", c.id, ErrMalformedRequestLine, line)
		c.setPhase(phaseResponding)
		c.writeResponse(textResponse(400, "Bad Request"))
		c.observeDone("bad-request")
		c.close()
		return routeResult{}, false
	}
	c.req.Method, c.req.Target, c.req.Proto = method, target, proto

	c.setPhase(phaseHeaders)
	block, _, err := c.rd.ReadHeaderBlock()
	if err != nil {
		c.srv.logf(obs.Debug, "conn %d: read headers: %v", c.id, err)
		return routeResult{}, false
	}
	c.touch()
	c.req.RawHeader = block

	if n, ok := wire.ContentLength(block); ok && n > 0 {
		if n > c.srv.maxBodyBytes() {
			// The declared length would drive the allocation below; an
			// over-limit body is an I/O failure local to this connection.
			c.srv.logf(obs.Warn, "conn %d: declared body of %d bytes exceeds limit %d", c.id, n, c.srv.maxBodyBytes())
			c.srv.metricCounter("httpd_bodies_rejected", 1)
			return routeResult{}, false
		}
		c.setPhase(phaseBody)
		body, err := c.rd.ReadFull(n)
		if err != nil {
			c.srv.logf(obs.Debug, "conn %d: read body (%d bytes): %v", c.id, n, err)
			return routeResult{}, false
		}
		c.touch()
		c.req.Body = body
	}

	c.setPhase(phaseDispatch)
	return c.srv.dispatch(&c.req), true
}

// deliverDelayed runs on the delay timer goroutine once the scheduler entry
// has been claimed. A connection torn down first never reaches here: its
// cleanup cancels the scheduler entry.
func (c *conn) deliverDelayed(resp *Response) {
	c.idle.Stop()
	c.setPhase(phaseResponding)
	c.writeResponse(resp)
	c.observeDone("delay")
	c.close()
}

func (c *conn) writeResponse(resp *Response) {
	c.touch()
	_ = c.rwc.SetWriteDeadline(time.Now().Add(c.srv.idleTimeout()))
	now := time.Now()
	if err := wire.WriteResponse(c.bw, resp.StatusCode, resp.Reason, resp.fields(now), resp.Body); err != nil {
		c.srv.logf(obs.Warn, "conn %d: write response: %v", c.id, err)
	}
}

func (c *conn) observeDone(route string) {
	c.srv.metricHistogram("httpd_request_seconds", time.Since(c.start).Seconds(),
		obs.Label{Key: "route", Value: route})
}

// close is the single terminal path. It deregisters the connection, cancels
// the idle timer and any pending delay timer, and releases the socket.
// Safe to invoke any number of times from any goroutine.
func (c *conn) close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.closeMu.Unlock()

	c.setPhase(phaseClosed)
	c.idle.Stop()
	if c.srv.delays.cancel(c.id) {
		c.srv.metricCounter("httpd_delays_cancelled", 1)
	}
	c.srv.reg.remove(c.id)
	_ = c.rwc.Close()
}
