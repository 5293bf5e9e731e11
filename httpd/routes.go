package httpd

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dqx0.com/go/testhttpd/internal/obs"
)

// CustomHandler may claim a request before the fixed route table is
// consulted. It receives a pre-built 200 response to inspect or mutate and
// returns true to serve it, false to fall through to the table.
type CustomHandler func(*Request, *Response) bool

// routeResult is what a matched route produces: either an immediate
// response, or one whose transmission is deferred by delay.
type routeResult struct {
	route    string
	resp     *Response
	delay    time.Duration
	deferred bool
}

type route struct {
	name  string
	apply func(*Request, time.Time) (routeResult, bool)
}

// maxRepeatBytes caps the expanded /repeat body. The count is
// client-supplied, so the product must be bounded before it drives an
// allocation.
const maxRepeatBytes = 10 << 20

// The table is ordered; the first match wins.
var routes = []route{
	{"repeat", applyRepeat},
	{"echo-head", applyEchoHead},
	{"echo-body", applyEchoBody},
	{"delay", applyDelay},
}

// dispatch maps a completed request to a route result. Unmatched targets
// recover locally into a well-formed 404.
func (s *Server) dispatch(req *Request) routeResult {
	if s.Custom != nil {
		resp := &Response{StatusCode: 200}
		if s.Custom(req, resp) {
			s.metricCounter("httpd_responses", 1, obs.Label{Key: "route", Value: "custom"})
			return routeResult{route: "custom", resp: resp}
		}
	}
	now := time.Now()
	for _, rt := range routes {
		if res, ok := rt.apply(req, now); ok {
			s.metricCounter("httpd_responses", 1, obs.Label{Key: "route", Value: rt.name})
			return res
		}
	}
	s.metricCounter("httpd_responses", 1, obs.Label{Key: "route", Value: "unmatched"})
	return routeResult{route: "unmatched", resp: textResponse(404, "Not Found")}
}

// /repeat/{n}/{rest}: rest repeated n times. rest may itself contain
// slashes; n=0 yields an empty body.
func applyRepeat(req *Request, _ time.Time) (routeResult, bool) {
	rest, ok := strings.CutPrefix(req.Target, "/repeat/")
	if !ok {
		return routeResult{}, false
	}
	nStr, rest, ok := strings.Cut(rest, "/")
	if !ok {
		return routeResult{}, false
	}
	n, err := strconv.Atoi(nStr)
	if err != nil || n < 0 {
		return routeResult{}, false
	}
	if len(rest) > 0 && n > maxRepeatBytes/len(rest) {
		return routeResult{route: "repeat", resp: textResponse(400, "Bad Request")}, true
	}
	body := bytes.Repeat([]byte(rest), n)
	return routeResult{route: "repeat", resp: &Response{StatusCode: 200, Body: body}}, true
}

// /echo/head: the request line and header block, byte-for-byte as received.
// The body is never included.
func applyEchoHead(req *Request, _ time.Time) (routeResult, bool) {
	if req.Target != "/echo/head" {
		return routeResult{}, false
	}
	body := make([]byte, 0, len(req.RawLine)+len(req.RawHeader))
	body = append(body, req.RawLine...)
	body = append(body, req.RawHeader...)
	return routeResult{route: "echo-head", resp: &Response{StatusCode: 200, Body: body}}, true
}

// /echo/body: the received body verbatim, empty when none was sent.
func applyEchoBody(req *Request, _ time.Time) (routeResult, bool) {
	if req.Target != "/echo/body" {
		return routeResult{}, false
	}
	return routeResult{route: "echo-body", resp: &Response{StatusCode: 200, Body: req.Body}}, true
}

// /delay/{n}: the response body is fixed at dispatch time, transmission is
// deferred by n seconds.
func applyDelay(req *Request, now time.Time) (routeResult, bool) {
	nStr, ok := strings.CutPrefix(req.Target, "/delay/")
	if !ok {
		return routeResult{}, false
	}
	n, err := strconv.Atoi(nStr)
	if err != nil || n < 0 {
		return routeResult{}, false
	}
	resp := textResponse(200, "issued "+now.UTC().Format(http.TimeFormat))
	return routeResult{route: "delay", resp: resp, delay: time.Duration(n) * time.Second, deferred: true}, true
}
