package sip

import "bytes"

var (
	crlfcrlf          = []byte("\r\n\r\n")
	contentLengthName = []byte("Content-Length:")
)

// Framer accumulates bytes from a stream transport and cuts them into
// complete SIP messages. TCP segments a message arbitrarily, so the only
// reliable boundary is the header terminator plus Content-Length body bytes.
//
// Not safe for concurrent use. One Framer per connection.
type Framer struct {
	buf []byte
}

// Feed appends data and returns every complete raw message now available.
// CRLFCRLF keepalive pings between messages are discarded.
func (f *Framer) Feed(data []byte) [][]byte {
	f.buf = append(f.buf, data...)

	var msgs [][]byte
	for {
		msg, ok := f.next()
		if !ok {
			break
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// Buffered returns number of bytes waiting for more data.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

func (f *Framer) next() ([]byte, bool) {
	// Keepalive pings are a bare CRLFCRLF between messages.
	for bytes.HasPrefix(f.buf, crlfcrlf) {
		f.buf = f.buf[len(crlfcrlf):]
	}
	// Stray line breaks or spaces before a start line are tolerated.
	f.buf = bytes.TrimLeft(f.buf, "\r\n \t")

	headerEnd := bytes.Index(f.buf, crlfcrlf)
	if headerEnd < 0 {
		return nil, false
	}

	bodyLen := parseContentLength(f.buf[:headerEnd])
	total := headerEnd + len(crlfcrlf) + bodyLen
	if len(f.buf) < total {
		return nil, false
	}

	msg := make([]byte, total)
	copy(msg, f.buf[:total])
	f.buf = f.buf[total:]
	return msg, true
}

// parseContentLength finds the Content-Length header in the raw header
// block. Devices emit the canonical spelling, so the match is exact.
// A missing or malformed value means no body.
func parseContentLength(headers []byte) int {
	ind := bytes.Index(headers, contentLengthName)
	if ind < 0 {
		return 0
	}

	rest := headers[ind+len(contentLengthName):]
	if end := bytes.Index(rest, []byte("\r\n")); end >= 0 {
		rest = rest[:end]
	}
	rest = bytes.TrimSpace(rest)

	n := 0
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
