package sip

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrParseLineNoCRLF is returned when message line lacks CRLF ending.
	ErrParseLineNoCRLF = errors.New("line has no CRLF ending")

	// ErrParseInvalidMessage is returned for garbage that is neither
	// request nor response.
	ErrParseInvalidMessage = errors.New("invalid SIP message")
)

// ParseMessage parses a full SIP message, headers and body included.
// Stream transports must frame messages first, see Framer.
func ParseMessage(data []byte) (Message, error) {
	str := string(data)

	lineEnd := strings.Index(str, "\r\n")
	if lineEnd < 0 {
		return nil, ErrParseLineNoCRLF
	}
	startLine := str[:lineEnd]
	rest := str[lineEnd+2:]

	msg, err := parseStartLine(startLine)
	if err != nil {
		return nil, err
	}

	// Headers until the empty line.
	for {
		lineEnd = strings.Index(rest, "\r\n")
		if lineEnd < 0 {
			return nil, ErrParseLineNoCRLF
		}
		line := rest[:lineEnd]
		rest = rest[lineEnd+2:]
		if line == "" {
			break
		}
		if err := parseHeaderLine(msg, line); err != nil {
			return nil, err
		}
	}

	if len(rest) > 0 {
		msg.SetBody([]byte(rest))
	}
	return msg, nil
}

// ParseRequest is ParseMessage that fails on responses.
func ParseRequest(data []byte) (*Request, error) {
	msg, err := ParseMessage(data)
	if err != nil {
		return nil, err
	}
	req, ok := msg.(*Request)
	if !ok {
		return nil, fmt.Errorf("not a request: %s", msg.StartLine())
	}
	return req, nil
}

// A response start line leads with the protocol name. Anything else is
// treated as a request line.
func parseStartLine(line string) (Message, error) {
	if strings.HasPrefix(line, "SIP") {
		return parseStatusLine(line)
	}
	return parseRequestLine(line)
}

func parseRequestLine(line string) (*Request, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: malformed request line '%s'", ErrParseInvalidMessage, line)
	}

	var uri Uri
	if err := ParseUri(parts[1], &uri); err != nil {
		return nil, err
	}

	req := NewRequest(RequestMethod(strings.ToUpper(parts[0])), &uri)
	req.SipVersion = parts[2]
	return req, nil
}

func parseStatusLine(line string) (*Response, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: malformed status line '%s'", ErrParseInvalidMessage, line)
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad status code in '%s'", ErrParseInvalidMessage, line)
	}

	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	return NewResponse(parts[0], StatusCode(code), reason), nil
}

func parseHeaderLine(msg Message, line string) error {
	name, value, found := strings.Cut(line, ":")
	if !found {
		return fmt.Errorf("%w: header line without colon '%s'", ErrParseInvalidMessage, line)
	}
	value = strings.TrimSpace(value)

	var (
		h   Header
		err error
	)
	switch HeaderToLower(strings.TrimSpace(name)) {
	case "via", "v":
		h, err = parseViaHeader(value)
	case "from", "f":
		h, err = parseFromHeader(value)
	case "to", "t":
		h, err = parseToHeader(value)
	case "contact", "m":
		h, err = parseContactHeader(value)
	case "call-id", "i":
		ch := CallIDHeader(value)
		h = &ch
	case "cseq":
		h, err = parseCSeqHeader(value)
	case "content-length", "l":
		h, err = parseUintHeader(value, func(v uint32) Header {
			cl := ContentLengthHeader(v)
			return &cl
		})
	case "content-type", "c":
		ct := ContentTypeHeader(value)
		h = &ct
	case "max-forwards":
		h, err = parseUintHeader(value, func(v uint32) Header {
			mf := MaxForwardsHeader(v)
			return &mf
		})
	case "expires":
		h, err = parseUintHeader(value, func(v uint32) Header {
			e := ExpiresHeader(v)
			return &e
		})
	default:
		h = NewHeader(strings.TrimSpace(name), value)
	}
	if err != nil {
		return err
	}
	msg.AppendHeader(h)
	return nil
}

func parseViaHeader(value string) (*ViaHeader, error) {
	h := &ViaHeader{}

	sentProtocol, rest, found := strings.Cut(value, " ")
	if !found {
		return nil, fmt.Errorf("malformed via '%s'", value)
	}
	protoParts := strings.SplitN(sentProtocol, "/", 3)
	if len(protoParts) != 3 {
		return nil, fmt.Errorf("malformed via protocol '%s'", sentProtocol)
	}
	h.ProtocolName = protoParts[0]
	h.ProtocolVersion = protoParts[1]
	h.Transport = protoParts[2]

	sentBy := rest
	if ind := strings.IndexByte(rest, ';'); ind >= 0 {
		sentBy = rest[:ind]
		h.Params = NewParams()
		parseParams(rest[ind+1:], ';', &h.Params)
	}

	sentBy = strings.TrimSpace(sentBy)
	if host, portStr, found := strings.Cut(sentBy, ":"); found {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("malformed via port '%s': %w", sentBy, err)
		}
		h.Host = host
		h.Port = port
	} else {
		h.Host = sentBy
	}
	return h, nil
}

func parseFromHeader(value string) (*FromHeader, error) {
	h := &FromHeader{}
	var err error
	h.DisplayName, h.Address, h.Params, err = parseNameAddr(value)
	return h, err
}

func parseToHeader(value string) (*ToHeader, error) {
	h := &ToHeader{}
	var err error
	h.DisplayName, h.Address, h.Params, err = parseNameAddr(value)
	return h, err
}

func parseContactHeader(value string) (*ContactHeader, error) {
	h := &ContactHeader{}
	var err error
	h.DisplayName, h.Address, h.Params, err = parseNameAddr(value)
	return h, err
}

// parseNameAddr parses ["display"] <uri>;header-params or a bare uri.
func parseNameAddr(value string) (displayName string, uri Uri, params HeaderParams, err error) {
	rest := strings.TrimSpace(value)

	if open := strings.IndexByte(rest, '<'); open >= 0 {
		displayName = strings.Trim(strings.TrimSpace(rest[:open]), "\"")
		closeIdx := strings.IndexByte(rest, '>')
		if closeIdx < open {
			err = fmt.Errorf("unmatched angle bracket in '%s'", value)
			return
		}
		if err = ParseUri(rest[open+1:closeIdx], &uri); err != nil {
			return
		}
		rest = rest[closeIdx+1:]
		if ind := strings.IndexByte(rest, ';'); ind >= 0 {
			params = NewParams()
			parseParams(rest[ind+1:], ';', &params)
		}
		return
	}

	// Bare uri form. Params after ; belong to the header, not the uri.
	if ind := strings.IndexByte(rest, ';'); ind >= 0 {
		params = NewParams()
		parseParams(rest[ind+1:], ';', &params)
		rest = rest[:ind]
	}
	err = ParseUri(rest, &uri)
	return
}

func parseCSeqHeader(value string) (*CSeqHeader, error) {
	seqStr, method, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found {
		return nil, fmt.Errorf("malformed cseq '%s'", value)
	}
	seq, err := strconv.ParseUint(seqStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed cseq number '%s': %w", value, err)
	}
	return &CSeqHeader{
		SeqNo:      uint32(seq),
		MethodName: RequestMethod(strings.ToUpper(strings.TrimSpace(method))),
	}, nil
}

func parseUintHeader(value string, mk func(uint32) Header) (Header, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed numeric header '%s': %w", value, err)
	}
	return mk(uint32(v)), nil
}
