// Package sip implements the subset of RFC 3261 spoken by GB/T 28181
// devices: a typed request/response model with ordered headers, a message
// parser, and a Content-Length based framer for stream transports.
package sip

import (
	"math/rand"
	"strings"
)

const (
	SipVersion = "SIP/2.0"

	DefaultPort = 5060

	RFC3261BranchMagicCookie = "z9hG4bK"
)

// RequestMethod is a SIP method name, always upper case.
type RequestMethod string

func (r RequestMethod) String() string { return string(r) }

const (
	INVITE    RequestMethod = "INVITE"
	ACK       RequestMethod = "ACK"
	CANCEL    RequestMethod = "CANCEL"
	BYE       RequestMethod = "BYE"
	REGISTER  RequestMethod = "REGISTER"
	OPTIONS   RequestMethod = "OPTIONS"
	SUBSCRIBE RequestMethod = "SUBSCRIBE"
	NOTIFY    RequestMethod = "NOTIFY"
	INFO      RequestMethod = "INFO"
	MESSAGE   RequestMethod = "MESSAGE"
	PRACK     RequestMethod = "PRACK"
	UPDATE    RequestMethod = "UPDATE"
	PUBLISH   RequestMethod = "PUBLISH"
)

// StatusCode - response status code: 1xx - 6xx
type StatusCode int

const (
	StatusTrying       StatusCode = 100
	StatusOK           StatusCode = 200
	StatusBadRequest   StatusCode = 400
	StatusUnauthorized StatusCode = 401
	StatusNotFound     StatusCode = 404
)

const letterBytes = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const tagCharset = "0123456789abcdef"

// RandString returns random alphanumeric string of length n.
func RandString(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(letterBytes[rand.Intn(len(letterBytes))])
	}
	return sb.String()
}

// GenerateTag returns a random lower-hex dialog tag of length n.
// GB/T 28181 devices use 10 char local tags; dialog From tags are 32.
func GenerateTag(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(tagCharset[rand.Intn(len(tagCharset))])
	}
	return sb.String()
}

// GenerateBranch returns random unique branch ID.
func GenerateBranch() string {
	return RFC3261BranchMagicCookie + "." + RandString(16)
}
