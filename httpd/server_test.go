package httpd

import (
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg func(*Server)) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &Server{}
	if cfg != nil {
		cfg(s)
	}
	s.initState()
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() { _ = s.Close() })
	return s, ln.Addr().String()
}

// roundTrip writes raw on a fresh connection and reads until the server
// closes, as an HTTP/1.0 client would.
func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte(raw))
	require.NoError(t, err)
	_ = c.SetReadDeadline(time.Now().Add(10 * time.Second))
	b, err := io.ReadAll(c)
	require.NoError(t, err)
	return string(b)
}

func splitResponse(t *testing.T, res string) (status string, head string, body string) {
	t.Helper()
	i := strings.Index(res, "\r\n\r\n")
	require.GreaterOrEqual(t, i, 0, "no header/body separator in %q", res)
	head, body = res[:i], res[i+4:]
	status, _, _ = strings.Cut(head, "\r\n")
	return status, head, body
}

func TestServeRepeat(t *testing.T) {
	_, addr := startServer(t, nil)
	res := roundTrip(t, addr, "GET /repeat/3/ab HTTP/1.0\r\n\r\n")
	status, head, body := splitResponse(t, res)
	assert.Equal(t, "HTTP/1.0 200 OK", status)
	assert.Equal(t, "ababab", body)
	assert.Contains(t, head, "Connection: close\r\n")
	assert.Contains(t, head, "Content-Type: text/plain\r\n")
	assert.Contains(t, head, "Server: testhttpd/")
	assert.Contains(t, head, "Date: ")
	assert.Contains(t, head+"\r\n", "Content-Length: 6\r\n")
}

func TestServeProtocolDowngradedTo10(t *testing.T) {
	_, addr := startServer(t, nil)
	res := roundTrip(t, addr, "GET /repeat/1/x HTTP/1.1\r\nHost: a\r\n\r\n")
	assert.True(t, strings.HasPrefix(res, "HTTP/1.0 "), "got %q", res)
}

func TestServeEchoBody(t *testing.T) {
	_, addr := startServer(t, nil)
	payload := "param1=value1&param2=value2"
	req := fmt.Sprintf("POST /echo/body HTTP/1.0\r\nContent-Length: %d\r\n\r\n%s", len(payload), payload)
	_, _, body := splitResponse(t, roundTrip(t, addr, req))
	assert.Equal(t, payload, body)
}

func TestServeEchoBodyWithoutBody(t *testing.T) {
	_, addr := startServer(t, nil)
	status, _, body := splitResponse(t, roundTrip(t, addr, "GET /echo/body HTTP/1.0\r\n\r\n"))
	assert.Equal(t, "HTTP/1.0 200 OK", status)
	assert.Empty(t, body)
}

func TestServeEchoHeadByteForByte(t *testing.T) {
	_, addr := startServer(t, nil)
	// Mixed terminators on purpose: the echo must reproduce exactly what
	// was received, and never the body.
	head := "POST /echo/head HTTP/1.0\nHost: x\r\nX-Probe: v\nContent-Length: 6\r\n"
	res := roundTrip(t, addr, head+"\r\nsecret")
	status, _, body := splitResponse(t, res)
	assert.Equal(t, "HTTP/1.0 200 OK", status)
	assert.Equal(t, head, body)
	assert.NotContains(t, body, "secret")
}

func TestServeNotFound(t *testing.T) {
	_, addr := startServer(t, nil)
	status, _, body := splitResponse(t, roundTrip(t, addr, "GET /nonexistent HTTP/1.0\r\n\r\n"))
	assert.Equal(t, "HTTP/1.0 404 Not Found", status)
	assert.Equal(t, "Not Found", body)
}

func TestServeMalformedRequestLine(t *testing.T) {
	_, addr := startServer(t, nil)
	status, _, body := splitResponse(t, roundTrip(t, addr, "NONSENSE\r\n"))
	assert.Equal(t, "HTTP/1.0 400 Bad Request", status)
	assert.Equal(t, "Bad Request", body)
}

func TestServeDelayNotEarly(t *testing.T) {
	_, addr := startServer(t, nil)
	start := time.Now()
	status, _, body := splitResponse(t, roundTrip(t, addr, "GET /delay/1 HTTP/1.0\r\n\r\n"))
	elapsed := time.Since(start)
	assert.Equal(t, "HTTP/1.0 200 OK", status)
	assert.True(t, strings.HasPrefix(body, "issued "), "body=%q", body)
	assert.GreaterOrEqual(t, elapsed, time.Second, "delayed response arrived early")
}

func TestServeMaxConnRejectsWithoutResponse(t *testing.T) {
	s, addr := startServer(t, func(s *Server) { s.MaxConn = 1 })

	a, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer a.Close()
	// Let the server admit A before B arrives.
	require.Eventually(t, func() bool { return s.reg.size() == 1 }, 2*time.Second, 10*time.Millisecond)

	b, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer b.Close()
	_, _ = b.Write([]byte("GET /repeat/1/x HTTP/1.0\r\n\r\n"))
	_ = b.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, _ := io.ReadAll(b)
	assert.Empty(t, got, "rejected connection must receive no response")
	assert.Equal(t, 1, s.reg.size(), "rejected connection must not occupy a registry slot")

	// A still works.
	_, _ = a.Write([]byte("GET /repeat/2/y HTTP/1.0\r\n\r\n"))
	_ = a.SetReadDeadline(time.Now().Add(5 * time.Second))
	res, _ := io.ReadAll(a)
	_, _, body := splitResponse(t, string(res))
	assert.Equal(t, "yy", body)
}

func TestServeRegistryEmptyAfterCompletion(t *testing.T) {
	s, addr := startServer(t, nil)
	roundTrip(t, addr, "GET /repeat/1/x HTTP/1.0\r\n\r\n")
	require.Eventually(t, func() bool { return s.reg.size() == 0 }, 2*time.Second, 10*time.Millisecond,
		"registry must not contain a completed connection")
}

func TestServeIdleTimeoutMidPhase(t *testing.T) {
	_, addr := startServer(t, func(s *Server) { s.IdleTimeout = 100 * time.Millisecond })
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	// Partial request line, then silence.
	_, _ = c.Write([]byte("GET /repe"))
	start := time.Now()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, _ := io.ReadAll(c)
	assert.Empty(t, got, "timed-out connection must receive no response")
	assert.Less(t, time.Since(start), 4*time.Second, "connection not torn down by idle timeout")
}

func TestServeIdleTimeoutCancelsPendingDelay(t *testing.T) {
	s, addr := startServer(t, func(s *Server) { s.IdleTimeout = 150 * time.Millisecond })
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	_, _ = c.Write([]byte("GET /delay/5 HTTP/1.0\r\n\r\n"))
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, _ := io.ReadAll(c)
	assert.Empty(t, got, "supervisor must win over a longer delay, with no response")
	require.Eventually(t, func() bool { return s.delays.pending() == 0 }, 2*time.Second, 10*time.Millisecond,
		"pending delay timer must be cancelled on cleanup")
	require.Eventually(t, func() bool { return s.reg.size() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeDelayHoldsRegistrySlot(t *testing.T) {
	s, addr := startServer(t, nil)
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	_, _ = c.Write([]byte("GET /delay/1 HTTP/1.0\r\n\r\n"))
	require.Eventually(t, func() bool { return s.delays.pending() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.reg.size(), "waiting connection must keep its registry slot")
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	res, _ := io.ReadAll(c)
	_, _, body := splitResponse(t, string(res))
	assert.True(t, strings.HasPrefix(body, "issued "))
}

func TestServeBodyDeclaredTooLarge(t *testing.T) {
	s, addr := startServer(t, func(s *Server) { s.MaxBodyBytes = 1 << 10 })
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	_, _ = c.Write([]byte("POST /echo/body HTTP/1.0\r\nContent-Length: 4611686018427387904\r\n\r\n"))
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, _ := io.ReadAll(c)
	assert.Empty(t, got, "over-limit body must tear the connection down without a response")
	require.Eventually(t, func() bool { return s.reg.size() == 0 }, 2*time.Second, 10*time.Millisecond,
		"torn-down connection must leave the registry")

	// The failure is local to that connection: the server keeps serving.
	_, _, body := splitResponse(t, roundTrip(t, addr, "GET /repeat/2/ok HTTP/1.0\r\n\r\n"))
	assert.Equal(t, "okok", body)
}

func TestServeRepeatCountTooLarge(t *testing.T) {
	s, addr := startServer(t, nil)
	status, _, body := splitResponse(t, roundTrip(t, addr, "GET /repeat/4611686018427387904/ab HTTP/1.0\r\n\r\n"))
	assert.Equal(t, "HTTP/1.0 400 Bad Request", status)
	assert.Equal(t, "Bad Request", body)

	// Still alive afterwards.
	_, _, body = splitResponse(t, roundTrip(t, addr, "GET /repeat/1/ok HTTP/1.0\r\n\r\n"))
	assert.Equal(t, "ok", body)
	require.Eventually(t, func() bool { return s.reg.size() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeCustomHandler(t *testing.T) {
	_, addr := startServer(t, func(s *Server) {
		s.Custom = func(req *Request, resp *Response) bool {
			if req.Target != "/custom" {
				return false
			}
			resp.Body = []byte("custom content")
			return true
		}
	})
	status, _, body := splitResponse(t, roundTrip(t, addr, "GET /custom HTTP/1.0\r\n\r\n"))
	assert.Equal(t, "HTTP/1.0 200 OK", status)
	assert.Equal(t, "custom content", body)

	// Declined requests fall through to the fixed table.
	_, _, body = splitResponse(t, roundTrip(t, addr, "GET /repeat/2/z HTTP/1.0\r\n\r\n"))
	assert.Equal(t, "zz", body)
}

func TestServerCloseIdempotent(t *testing.T) {
	s, _ := startServer(t, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestServeBareLFFraming(t *testing.T) {
	_, addr := startServer(t, nil)
	status, _, body := splitResponse(t, roundTrip(t, addr, "GET /repeat/2/ok HTTP/1.0\n\n"))
	assert.Equal(t, "HTTP/1.0 200 OK", status)
	assert.Equal(t, "okok", body)
}
