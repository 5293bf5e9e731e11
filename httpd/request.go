package httpd

// Request is the parsed request handed to the dispatcher. It is derived from
// connection state at dispatch time and read-only afterwards.
//
// Headers are deliberately not parsed into a structured map: the block is
// kept exactly as received so /echo/head can reproduce it byte-for-byte.
type Request struct {
	Method string
	Target string
	// Proto is the protocol token the client sent. Responses are always
	// written as HTTP/1.0 regardless.
	Proto string

	// RawLine is the request line as received, terminator included.
	RawLine []byte
	// RawHeader is the header block as received, line terminators included,
	// without the final blank line.
	RawHeader []byte

	Body []byte
}
