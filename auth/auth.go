// Package auth implements the MD5 digest access authentication subset of
// RFC 2617 used by GB/T 28181 REGISTER.
package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoDigest   = errors.New("authorization is not a digest")
	ErrBadDigest  = errors.New("digest mismatch")
	ErrStaleNonce = errors.New("nonce mismatch")
)

// Credentials are the fields of an Authorization digest header value.
type Credentials struct {
	Username  string
	Realm     string
	Nonce     string
	URI       string
	Response  string
	Algorithm string
	CNonce    string
	Qop       string
	Nc        string
}

// ParseAuthorization parses the value of an Authorization header,
// e.g. `Digest username="34020000001320000001", realm="...", ...`.
func ParseAuthorization(value string) (*Credentials, error) {
	scheme, rest, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Digest") {
		return nil, ErrNoDigest
	}

	creds := &Credentials{}
	for _, kv := range strings.Split(rest, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(kv), "=")
		if !found {
			continue
		}
		v = strings.Trim(v, "\"")
		switch strings.ToLower(k) {
		case "username":
			creds.Username = v
		case "realm":
			creds.Realm = v
		case "nonce":
			creds.Nonce = v
		case "uri":
			creds.URI = v
		case "response":
			creds.Response = v
		case "algorithm":
			creds.Algorithm = v
		case "cnonce":
			creds.CNonce = v
		case "qop":
			creds.Qop = v
		case "nc":
			creds.Nc = v
		}
	}
	if creds.Username == "" || creds.Response == "" {
		return nil, fmt.Errorf("incomplete digest credentials '%s'", value)
	}
	return creds, nil
}

// Validator checks digest credentials against the configured secret.
type Validator struct {
	Realm    string
	Nonce    string
	Password string
}

// Verify recomputes the digest for the given request method and compares it
// with the client response. The nonce must be the one the validator issued.
func (v *Validator) Verify(creds *Credentials, method string) error {
	if creds.Nonce != v.Nonce {
		return ErrStaleNonce
	}

	ha1 := md5Hex(creds.Username + ":" + v.Realm + ":" + v.Password)
	ha2 := md5Hex(method + ":" + creds.URI)

	var expected string
	if creds.Qop != "" {
		// qop=auth: response includes nc and cnonce
		expected = md5Hex(ha1 + ":" + creds.Nonce + ":" + creds.Nc + ":" + creds.CNonce + ":" + creds.Qop + ":" + ha2)
	} else {
		expected = md5Hex(ha1 + ":" + creds.Nonce + ":" + ha2)
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(creds.Response))) != 1 {
		return ErrBadDigest
	}
	return nil
}

// Challenge renders the WWW-Authenticate value sent with 401.
func (v *Validator) Challenge(algorithm string) string {
	if algorithm == "" {
		algorithm = "MD5"
	}
	return fmt.Sprintf("Digest realm=\"%s\", nonce=\"%s\", algorithm=%s, qop=\"auth\"",
		v.Realm, v.Nonce, strings.ToUpper(algorithm))
}

func md5Hex(in string) string {
	sum := md5.Sum([]byte(in))
	return hex.EncodeToString(sum[:])
}
