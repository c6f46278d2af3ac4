package sip

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Request RFC 3261 - 7.1.
type Request struct {
	MessageData
	Method    RequestMethod
	Recipient *Uri
}

// NewRequest creates base for building sip Request
// No headers are added. AppendHeader should be called to add Headers.
// r.SetBody can be called to set proper ContentLength header
func NewRequest(method RequestMethod, recipient *Uri) *Request {
	req := &Request{}
	req.SipVersion = SipVersion
	req.headers = headers{
		headerOrder: make([]Header, 0),
	}
	req.Method = method
	req.Recipient = recipient
	return req
}

func (req *Request) Short() string {
	if req == nil {
		return "<nil>"
	}
	return fmt.Sprintf("request method=%s recipient=%s transport=%s source=%s",
		req.Method,
		req.Recipient.String(),
		req.Transport(),
		req.Source(),
	)
}

// StartLine returns Request Line - RFC 2361 7.1.
func (req *Request) StartLine() string {
	var buffer strings.Builder
	req.StartLineWrite(&buffer)
	return buffer.String()
}

func (req *Request) StartLineWrite(buffer io.StringWriter) {
	buffer.WriteString(string(req.Method))
	buffer.WriteString(" ")
	req.Recipient.StringWrite(buffer)
	buffer.WriteString(" ")
	buffer.WriteString(req.SipVersion)
}

func (req *Request) String() string {
	var buffer strings.Builder
	req.StringWrite(&buffer)
	return buffer.String()
}

func (req *Request) StringWrite(buffer io.StringWriter) {
	// The start-line, each message-header line, and the empty line MUST be
	// terminated by a carriage-return line-feed sequence (CRLF). Note that
	// the empty line MUST be present even if the message-body is not.
	req.StartLineWrite(buffer)
	buffer.WriteString("\r\n")
	req.headers.StringWrite(buffer)
	// Empty line
	buffer.WriteString("\r\n")
	if req.body != nil {
		buffer.WriteString(string(req.body))
	}
}

func (req *Request) IsInvite() bool {
	return req.Method == INVITE
}

func (req *Request) IsAck() bool {
	return req.Method == ACK
}

// Transport returns the transport the request arrived on or should leave on.
// Falls back to the topmost Via, then to UDP.
func (req *Request) Transport() string {
	if tp := req.MessageData.Transport(); tp != "" {
		return tp
	}
	if via := req.Via(); via != nil && via.Transport != "" {
		return via.Transport
	}
	if req.Recipient != nil && req.Recipient.UriParams != nil {
		if val, ok := req.Recipient.UriParams.Get("transport"); ok && val != "" {
			return strings.ToUpper(val)
		}
	}
	return "UDP"
}

// Source returns the network source address, derived from the topmost Via
// when the transport layer did not record one. Honors received/rport.
func (req *Request) Source() string {
	if src := req.MessageData.Source(); src != "" {
		return src
	}

	via := req.Via()
	if via == nil {
		return ""
	}

	host := via.Host
	port := via.Port
	if port == 0 {
		port = DefaultPort
	}
	if via.Params != nil {
		if received, ok := via.Params.Get("received"); ok && received != "" {
			host = received
		}
		if rport, ok := via.Params.Get("rport"); ok && rport != "" {
			if p, err := strconv.Atoi(rport); err == nil {
				port = p
			}
		}
	}
	return fmt.Sprintf("%v:%v", host, port)
}

func (req *Request) Destination() string {
	if dest := req.MessageData.Destination(); dest != "" {
		return dest
	}
	uri := req.Recipient
	if uri == nil {
		return ""
	}
	if uri.Port > 0 {
		return fmt.Sprintf("%v:%v", uri.Host, uri.Port)
	}
	return fmt.Sprintf("%v:%v", uri.Host, DefaultPort)
}

func (req *Request) Clone() *Request {
	newReq := NewRequest(req.Method, req.Recipient.Clone())
	newReq.SipVersion = req.SipVersion
	for _, h := range req.CloneHeaders() {
		newReq.AppendHeader(h)
	}
	if req.body != nil {
		newReq.SetBody(append([]byte(nil), req.body...))
	}
	newReq.SetTransport(req.MessageData.Transport())
	newReq.SetSource(req.MessageData.Source())
	newReq.SetDestination(req.MessageData.Destination())
	return newReq
}
