package sip

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Response RFC 3261 - 7.2.
type Response struct {
	MessageData
	status StatusCode
	reason string
}

func NewResponse(sipVersion string, statusCode StatusCode, reason string) *Response {
	res := &Response{}
	res.SipVersion = sipVersion
	res.headers = headers{
		headerOrder: make([]Header, 0),
	}
	res.status = statusCode
	res.reason = reason
	return res
}

func (res *Response) Short() string {
	if res == nil {
		return "<nil>"
	}
	return fmt.Sprintf("response status=%d reason=%s transport=%s source=%s",
		res.StatusCode(),
		res.Reason(),
		res.Transport(),
		res.Source(),
	)
}

func (res *Response) StatusCode() StatusCode {
	return res.status
}

func (res *Response) SetStatusCode(code StatusCode) {
	res.status = code
}

func (res *Response) Reason() string {
	return res.reason
}

func (res *Response) SetReason(reason string) {
	res.reason = reason
}

// StartLine returns Response Status Line - RFC 2361 7.2.
func (res *Response) StartLine() string {
	var buffer strings.Builder
	res.StartLineWrite(&buffer)
	return buffer.String()
}

func (res *Response) StartLineWrite(buffer io.StringWriter) {
	buffer.WriteString(res.SipVersion)
	buffer.WriteString(" ")
	buffer.WriteString(strconv.Itoa(int(res.StatusCode())))
	buffer.WriteString(" ")
	buffer.WriteString(res.Reason())
}

func (res *Response) String() string {
	var buffer strings.Builder
	res.StringWrite(&buffer)
	return buffer.String()
}

func (res *Response) StringWrite(buffer io.StringWriter) {
	res.StartLineWrite(buffer)
	buffer.WriteString("\r\n")
	res.headers.StringWrite(buffer)
	// Empty line
	buffer.WriteString("\r\n")
	if res.body != nil {
		buffer.WriteString(string(res.body))
	}
}

func (res *Response) IsProvisional() bool {
	return res.StatusCode() < 200
}

func (res *Response) IsSuccess() bool {
	return res.StatusCode() >= 200 && res.StatusCode() < 300
}

func (res *Response) IsClientError() bool {
	return res.StatusCode() >= 400 && res.StatusCode() < 500
}

func (res *Response) Transport() string {
	if tp := res.MessageData.Transport(); tp != "" {
		return tp
	}
	if via := res.Via(); via != nil && via.Transport != "" {
		return via.Transport
	}
	return "UDP"
}

// Destination derives the send target from the topmost Via, honoring
// received/rport.
func (res *Response) Destination() string {
	if dest := res.MessageData.Destination(); dest != "" {
		return dest
	}

	via := res.Via()
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

// NewResponseFromRequest builds a response per RFC 3261 - 8.2.6: Via, From,
// To, Call-ID and CSeq are copied from the request in that order. For final
// responses a To tag is generated when the request carried none.
func NewResponseFromRequest(req *Request, statusCode StatusCode, reason string, body []byte) *Response {
	res := NewResponse(req.SipVersion, statusCode, reason)
	CopyHeaders("Via", req, res)
	CopyHeaders("From", req, res)
	CopyHeaders("To", req, res)
	CopyHeaders("Call-ID", req, res)
	CopyHeaders("CSeq", req, res)

	if statusCode >= 200 && res.to != nil {
		if _, ok := res.to.Params.Get("tag"); !ok {
			if res.to.Params == nil {
				res.to.Params = NewParams()
			}
			res.to.Params.Add("tag", GenerateTag(10))
		}
	}

	res.SetBody(body)

	res.SetTransport(req.Transport())
	res.SetSource(req.Destination())
	res.SetDestination(req.Source())
	return res
}

func (res *Response) Clone() *Response {
	newRes := NewResponse(res.SipVersion, res.StatusCode(), res.Reason())
	for _, h := range res.CloneHeaders() {
		newRes.AppendHeader(h)
	}
	if res.body != nil {
		newRes.SetBody(append([]byte(nil), res.body...))
	}
	newRes.SetTransport(res.MessageData.Transport())
	newRes.SetSource(res.MessageData.Source())
	newRes.SetDestination(res.MessageData.Destination())
	return newRes
}
