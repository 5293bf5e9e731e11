package httpd

import "errors"

var (
	ErrAdmissionRejected    = errors.New("httpd: connection pool at capacity")
	ErrMalformedRequestLine = errors.New("httpd: malformed request line")
	ErrIdleTimeout          = errors.New("httpd: idle timeout")
	ErrServerClosed         = errors.New("httpd: server closed")
)
