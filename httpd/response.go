package httpd

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"dqx0.com/go/testhttpd/httpd/internal/wire"
)

// Version is the library version reported in the Server header.
const Version = "1.0"

// Response is a canned response built by the dispatcher and serialized to
// the wire exactly once.
type Response struct {
	StatusCode int
	// Reason overrides the conventional phrase when non-empty.
	Reason string
	// ContentType defaults to text/plain when empty.
	ContentType string
	Body        []byte
}

func textResponse(status int, body string) *Response {
	return &Response{StatusCode: status, Body: []byte(body)}
}

// serverToken identifies the implementing library, the concurrency model and
// the runtime/OS, e.g. "testhttpd/1.0 net-goroutine go1.25.3 (linux)".
func serverToken() string {
	return fmt.Sprintf("testhttpd/%s net-goroutine %s (%s)", Version, runtime.Version(), runtime.GOOS)
}

// fields materializes the fixed, ordered header set. Date is taken at
// serialization time.
func (r *Response) fields(now time.Time) []wire.Field {
	ct := r.ContentType
	if ct == "" {
		ct = "text/plain"
	}
	return []wire.Field{
		{Name: "Connection", Value: "close"},
		{Name: "Content-Type", Value: ct},
		{Name: "Server", Value: serverToken()},
		{Name: "Date", Value: now.UTC().Format(http.TimeFormat)},
		{Name: "Content-Length", Value: strconv.Itoa(len(r.Body))},
	}
}
