package wire

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
)

// Reader reads HTTP/1.0 request framing from a buffered stream. Lines are
// terminated by LF, with an optional preceding CR; both terminators are
// accepted and the bytes actually received are preserved for callers that
// need to echo them back verbatim.
type Reader struct {
	BR *bufio.Reader
	// MaxLineBytes caps a single line. Zero means 8 KiB.
	MaxLineBytes int
	// MaxHeaderBytes caps the whole header block. Zero means 64 KiB.
	MaxHeaderBytes int
}

func (r *Reader) lineLimit() int {
	if r.MaxLineBytes <= 0 {
		return 8 << 10
	}
	return r.MaxLineBytes
}

func (r *Reader) headerLimit() int {
	if r.MaxHeaderBytes <= 0 {
		return 64 << 10
	}
	return r.MaxHeaderBytes
}

// ReadLine consumes one line. It returns the line with the terminator and
// trailing whitespace stripped, plus the raw bytes consumed, terminator
// included.
func (r *Reader) ReadLine() (string, []byte, error) {
	var raw []byte
	for {
		b, err := r.BR.ReadByte()
		if err != nil {
			return "", raw, err
		}
		raw = append(raw, b)
		if b == '\n' {
			break
		}
		if len(raw) > r.lineLimit() {
			return "", raw, io.ErrShortBuffer
		}
	}
	return strings.TrimRight(string(raw), " \t\r\n"), raw, nil
}

// ReadHeaderBlock consumes header lines up to the terminating blank line and
// returns two raw captures: the header lines as received and the blank line
// itself. Either terminator style is accepted per line.
func (r *Reader) ReadHeaderBlock() (block []byte, blank []byte, err error) {
	for {
		line, raw, err := r.ReadLine()
		if err != nil {
			return block, nil, err
		}
		if line == "" && isBlankLine(raw) {
			return block, raw, nil
		}
		block = append(block, raw...)
		if len(block) > r.headerLimit() {
			return block, nil, io.ErrShortBuffer
		}
	}
}

func isBlankLine(raw []byte) bool {
	return bytes.Equal(raw, []byte("\r\n")) || bytes.Equal(raw, []byte("\n"))
}

// ReadFull reads exactly n bytes.
func (r *Reader) ReadFull(n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.BR, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ParseRequestLine splits "METHOD SP TARGET SP HTTP-VERSION". The version
// token must start with "HTTP/"; anything else is a framing error.
func ParseRequestLine(line string) (method, target, proto string, ok bool) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	method, target, proto = parts[0], parts[1], parts[2]
	if method == "" || target == "" || !strings.HasPrefix(proto, "HTTP/") {
		return "", "", "", false
	}
	return method, target, proto, true
}

// ContentLength scans a raw header block for a Content-Length field,
// case-insensitively. ok is false when the field is absent or its value is
// not a non-negative integer.
func ContentLength(block []byte) (int64, bool) {
	for _, line := range bytes.Split(block, []byte("\n")) {
		i := bytes.IndexByte(line, ':')
		if i <= 0 {
			continue
		}
		name := strings.TrimSpace(string(line[:i]))
		if !strings.EqualFold(name, "Content-Length") {
			continue
		}
		v := strings.TrimSpace(string(line[i+1:]))
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
