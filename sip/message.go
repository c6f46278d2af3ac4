package sip

import (
	"io"
)

// Message is a shared interface of Request and Response.
type Message interface {
	// StartLine returns message start line.
	StartLine() string
	StartLineWrite(io.StringWriter)
	// String returns string representation of SIP message in RFC 3261 form.
	String() string
	// StringWrite is same as String but lets you provide writer and reduce allocations
	StringWrite(io.StringWriter)
	// Short returns short string info about message.
	Short() string

	// Headers returns all message headers.
	Headers() []Header
	// GetHeaders returns slice of headers of the given type.
	GetHeaders(name string) []Header
	// GetHeader returns first header with same name
	GetHeader(name string) Header
	// PrependHeader prepends header to message.
	PrependHeader(header ...Header)
	// AppendHeader appends header to message.
	AppendHeader(header Header)
	// RemoveHeader removes header from message.
	RemoveHeader(name string) bool
	ReplaceHeader(header Header)

	/* Helper getters for common headers. nil when absent. */
	Via() *ViaHeader
	From() *FromHeader
	To() *ToHeader
	CallID() *CallIDHeader
	CSeq() *CSeqHeader
	Contact() *ContactHeader
	ContentLength() *ContentLengthHeader
	ContentType() *ContentTypeHeader

	// Body returns message body.
	Body() []byte
	// SetBody sets message body.
	SetBody(body []byte)

	Transport() string
	SetTransport(tp string)
	Source() string
	SetSource(src string)
	Destination() string
	SetDestination(dest string)
}

type MessageData struct {
	// message headers
	headers
	SipVersion string
	body       []byte
	tp         string

	// This is for internal routing
	src  string
	dest string
}

func (msg *MessageData) Body() []byte {
	return msg.body
}

// SetBody sets message body, calculates its length and adds 'Content-Length' header.
func (msg *MessageData) SetBody(body []byte) {
	msg.body = body
	length := ContentLengthHeader(len(body))

	if hdr := msg.ContentLength(); hdr != nil {
		if length == *hdr {
			// Skip appending if value is same
			return
		}
		msg.ReplaceHeader(&length)
		return
	}
	msg.AppendHeader(&length)
}

func (msg *MessageData) Transport() string {
	return msg.tp
}

func (msg *MessageData) SetTransport(tp string) {
	msg.tp = tp
}

func (msg *MessageData) Source() string {
	return msg.src
}

func (msg *MessageData) SetSource(src string) {
	msg.src = src
}

func (msg *MessageData) Destination() string {
	return msg.dest
}

func (msg *MessageData) SetDestination(dest string) {
	msg.dest = dest
}
