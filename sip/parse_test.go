package sip

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegisterRequest(t *testing.T) {
	raw := "REGISTER sip:34020000002000000001@3402000000 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 192.168.1.64:5060;rport;branch=z9hG4bK776120lsd\r\n" +
		"From: <sip:34020000001320000001@3402000000>;tag=2096608796\r\n" +
		"To: <sip:34020000001320000001@3402000000>\r\n" +
		"Call-ID: 202081530@192.168.1.64\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Contact: <sip:34020000001320000001@192.168.1.64:5060>\r\n" +
		"Max-Forwards: 70\r\n" +
		"Expires: 3600\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)

	req, ok := msg.(*Request)
	require.True(t, ok)
	assert.Equal(t, REGISTER, req.Method)
	assert.Equal(t, "34020000002000000001", req.Recipient.User)
	assert.Equal(t, "3402000000", req.Recipient.Host)

	via := req.Via()
	require.NotNil(t, via)
	assert.Equal(t, "UDP", via.Transport)
	assert.Equal(t, "192.168.1.64", via.Host)
	assert.Equal(t, 5060, via.Port)
	assert.Equal(t, "z9hG4bK776120lsd", via.Branch())
	assert.True(t, via.Params.Has("rport"))

	from := req.From()
	require.NotNil(t, from)
	assert.Equal(t, "34020000001320000001", from.Address.User)
	assert.Equal(t, "2096608796", from.Tag())

	to := req.To()
	require.NotNil(t, to)
	assert.Empty(t, to.Tag())

	callid := req.CallID()
	require.NotNil(t, callid)
	assert.Equal(t, "202081530@192.168.1.64", callid.Value())

	cseq := req.CSeq()
	require.NotNil(t, cseq)
	assert.Equal(t, uint32(1), cseq.SeqNo)
	assert.Equal(t, REGISTER, cseq.MethodName)

	contact := req.Contact()
	require.NotNil(t, contact)
	assert.Equal(t, "192.168.1.64", contact.Address.Host)
	assert.Equal(t, 5060, contact.Address.Port)

	require.NotNil(t, req.Expires())
	assert.Equal(t, "3600", req.Expires().Value())

	// Round trip
	assert.Equal(t, raw, req.String())
}

func TestParseMessageWithBody(t *testing.T) {
	body := "<?xml version=\"1.0\"?>\r\n<Notify>\r\n<CmdType>Keepalive</CmdType>\r\n</Notify>\r\n"
	raw := "MESSAGE sip:34020000002000000001@3402000000 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 192.168.1.64:5060;branch=z9hG4bK776ks001\r\n" +
		"From: <sip:34020000001320000001@3402000000>;tag=75ab1f33\r\n" +
		"To: <sip:34020000002000000001@3402000000>\r\n" +
		"Call-ID: 93402@192.168.1.64\r\n" +
		"CSeq: 20 MESSAGE\r\n" +
		"Content-Type: Application/MANSCDP+xml\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" + body

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)

	req, ok := msg.(*Request)
	require.True(t, ok)
	assert.Equal(t, MESSAGE, req.Method)
	assert.Equal(t, body, string(req.Body()))
	require.NotNil(t, req.ContentType())
	assert.Equal(t, "Application/MANSCDP+xml", req.ContentType().Value())
	assert.Equal(t, raw, req.String())
}

func TestParseResponse(t *testing.T) {
	raw := "SIP/2.0 401 Unauthorized\r\n" +
		"Via: SIP/2.0/UDP 10.1.2.3:5060;branch=z9hG4bKabc\r\n" +
		"From: <sip:34020000001320000001@3402000000>;tag=abc\r\n" +
		"To: <sip:34020000001320000001@3402000000>;tag=def\r\n" +
		"Call-ID: x1@10.1.2.3\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"WWW-Authenticate: Digest realm=\"gbt@future_oriented.com\", nonce=\"f89d0eaccaf1c90453e2f84688ec800f05\", algorithm=MD5\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)

	res, ok := msg.(*Response)
	require.True(t, ok)
	assert.Equal(t, StatusUnauthorized, res.StatusCode())
	assert.Equal(t, "Unauthorized", res.Reason())
	require.NotNil(t, res.GetHeader("WWW-Authenticate"))
	assert.Equal(t, raw, res.String())
}

func TestParseGarbage(t *testing.T) {
	_, err := ParseMessage([]byte("hello world"))
	require.Error(t, err)

	_, err = ParseMessage([]byte("SIP/2.0 abc\r\n\r\n"))
	require.Error(t, err)
}

func TestNewResponseFromRequest(t *testing.T) {
	raw := "MESSAGE sip:34020000002000000001@3402000000 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 192.168.1.64:5060;branch=z9hG4bK77asjd\r\n" +
		"From: <sip:34020000001320000001@3402000000>;tag=387riX\r\n" +
		"To: <sip:34020000002000000001@3402000000>\r\n" +
		"Call-ID: 17351@192.168.1.64\r\n" +
		"CSeq: 2 MESSAGE\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"
	req, err := ParseRequest([]byte(raw))
	require.NoError(t, err)

	res := NewResponseFromRequest(req, StatusOK, "OK", nil)
	assert.Equal(t, StatusOK, res.StatusCode())

	// Header order mirrors the request
	hdrs := res.Headers()
	require.Len(t, hdrs, 6)
	assert.Equal(t, "Via", hdrs[0].Name())
	assert.Equal(t, "From", hdrs[1].Name())
	assert.Equal(t, "To", hdrs[2].Name())
	assert.Equal(t, "Call-ID", hdrs[3].Name())
	assert.Equal(t, "CSeq", hdrs[4].Name())
	assert.Equal(t, "Content-Length", hdrs[5].Name())
	assert.Equal(t, "0", hdrs[5].Value())

	// Final response gets a To tag when the request had none
	assert.Len(t, res.To().Tag(), 10)
	// From tag untouched
	assert.Equal(t, "387riX", res.From().Tag())
	// Request headers not mutated
	assert.Empty(t, req.To().Tag())

	assert.Equal(t, "192.168.1.64:5060", res.Destination())
}

func TestParseUri(t *testing.T) {
	var uri Uri
	require.NoError(t, ParseUri("sip:34020000001320000001@3402000000:5061;transport=tcp", &uri))
	assert.Equal(t, "34020000001320000001", uri.User)
	assert.Equal(t, "3402000000", uri.Host)
	assert.Equal(t, 5061, uri.Port)
	tp, _ := uri.UriParams.Get("transport")
	assert.Equal(t, "tcp", tp)
	assert.Equal(t, "sip:34020000001320000001@3402000000:5061;transport=tcp", uri.String())

	require.Error(t, ParseUri("34020000001320000001@3402000000", &uri))
}
