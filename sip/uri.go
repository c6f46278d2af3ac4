package sip

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Uri is parsed form of sip:user@host:port;uri-parameters
type Uri struct {
	// The user part of the URI: the gb code in sip:34020000001320000001@3402000000
	User string

	// The host part of the URI. A domain or an IP address.
	Host string

	// The port part of the URI. Optional, 0 when absent.
	Port int

	// Any parameters associated with the URI, e.g. transport=tcp.
	UriParams HeaderParams
}

func (uri *Uri) String() string {
	var buffer strings.Builder
	uri.StringWrite(&buffer)
	return buffer.String()
}

// StringWrite writes uri string to buffer
func (uri *Uri) StringWrite(buffer io.StringWriter) {
	buffer.WriteString("sip:")
	if uri.User != "" {
		buffer.WriteString(uri.User)
		buffer.WriteString("@")
	}
	buffer.WriteString(uri.Host)
	if uri.Port > 0 {
		buffer.WriteString(":")
		buffer.WriteString(strconv.Itoa(uri.Port))
	}
	if uri.UriParams != nil && uri.UriParams.Length() > 0 {
		buffer.WriteString(";")
		buffer.WriteString(uri.UriParams.ToString(';'))
	}
}

func (uri *Uri) Clone() *Uri {
	c := *uri
	if uri.UriParams != nil {
		c.UriParams = uri.UriParams.clone()
	}
	return &c
}

// HostPort represents host:port part
func (uri *Uri) HostPort() string {
	if uri.Port > 0 {
		return uri.Host + ":" + strconv.Itoa(uri.Port)
	}
	return uri.Host
}

// ParseUri converts a string representation of an URI into a Uri object.
// Supported forms:
//
//	sip:user@host:port;params
//	sip:host:port
func ParseUri(uriStr string, uri *Uri) error {
	rest, ok := strings.CutPrefix(uriStr, "sip:")
	if !ok {
		if rest, ok = strings.CutPrefix(uriStr, "sips:"); !ok {
			return fmt.Errorf("missing sip scheme in uri '%s'", uriStr)
		}
	}

	// Split off uri params first.
	if ind := strings.IndexByte(rest, ';'); ind >= 0 {
		params := NewParams()
		for _, p := range strings.Split(rest[ind+1:], ";") {
			if k, v, found := strings.Cut(p, "="); found {
				params.Add(k, v)
			} else if p != "" {
				params.Add(p, "")
			}
		}
		uri.UriParams = params
		rest = rest[:ind]
	}

	if ind := strings.IndexByte(rest, '@'); ind >= 0 {
		user := rest[:ind]
		// Password is strongly discouraged by RFC 3261, drop it.
		if pind := strings.IndexByte(user, ':'); pind >= 0 {
			user = user[:pind]
		}
		uri.User = user
		rest = rest[ind+1:]
	}

	if host, portStr, found := strings.Cut(rest, ":"); found {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port in uri '%s': %w", uriStr, err)
		}
		uri.Host = host
		uri.Port = port
	} else {
		uri.Host = rest
	}

	if uri.Host == "" {
		return fmt.Errorf("empty host in uri '%s'", uriStr)
	}
	return nil
}
