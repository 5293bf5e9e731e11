// Package httpd implements a minimal, non-persistent HTTP/1.0 test server
// for exercising HTTP client code against deterministic synthetic endpoints.
//
// The server accepts raw TCP connections, drives each one through a strict
// request-handling state machine (request line, headers, optional body,
// dispatch, response), and always closes the connection after one exchange.
// Responses come from a fixed, ordered route table:
//
//	/repeat/{n}/{rest}  rest repeated n times
//	/echo/head          the request head, byte-for-byte as received
//	/echo/body          the request body, verbatim
//	/delay/{n}          response deferred by n seconds
//
// Unmatched paths yield 404, malformed request lines yield 400. A Custom
// hook may claim a request before the table is consulted.
//
// Concurrently open connections are capped at MaxConn; connections beyond
// the cap are dropped at admission without a response. Every connection
// carries an inactivity timeout (default 60s) that force-closes it
// mid-phase, cancelling any pending delayed response.
//
// Quick start:
//
//	s := &httpd.Server{Addr: "127.0.0.1:0", MaxConn: 8}
//	if err := s.ListenAndServe(); err != nil { log.Fatal(err) }
package httpd
