package wire

import (
	"bufio"
	"fmt"
	"strings"
)

// Field is one response header in emission order.
type Field struct {
	Name  string
	Value string
}

// WriteResponse serializes a complete HTTP/1.0 response: status line, the
// given fields in order, a blank line, then the body. The protocol token is
// always HTTP/1.0 regardless of what the client asked for.
func WriteResponse(bw *bufio.Writer, status int, reason string, fields []Field, body []byte) error {
	if reason == "" {
		reason = DefaultReason(status)
	}
	if _, err := fmt.Fprintf(bw, "HTTP/1.0 %d %s\r\n", status, reason); err != nil {
		return err
	}
	for _, f := range fields {
		if _, err := fmt.Fprintf(bw, "%s: %s\r\n", f.Name, sanitizeFieldValue(f.Value)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(bw, "\r\n"); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := bw.Write(body); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DefaultReason returns the conventional reason phrase for a status code.
func DefaultReason(code int) string {
	switch code {
	case 200:
		return "OK"
	case 204:
		return "No Content"
	case 400:
		return "Bad Request"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	default:
		return ""
	}
}

func sanitizeFieldValue(v string) string {
	if v == "" {
		return v
	}
	// Remove CR/LF and other control chars except HTAB.
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f {
			continue
		}
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
