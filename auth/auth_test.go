package auth

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRealm    = "gbt@future_oriented.com"
	testNonce    = "f89d0eaccaf1c90453e2f84688ec800f05"
	testPassword = "d383cf85b0e8ce0b"
	testUser     = "34020000001320000001"
	testURI      = "sip:34020000002000000001@3402000000"
)

// clientDigest computes the response the way a device would.
func clientDigest(username, realm, password, method, uri, nonce, nc, cnonce, qop string) string {
	ha1 := md5Hex(username + ":" + realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)
	if qop != "" {
		return md5Hex(ha1 + ":" + nonce + ":" + nc + ":" + cnonce + ":" + qop + ":" + ha2)
	}
	return md5Hex(ha1 + ":" + nonce + ":" + ha2)
}

func TestVerifyWithoutQop(t *testing.T) {
	v := &Validator{Realm: testRealm, Nonce: testNonce, Password: testPassword}

	response := clientDigest(testUser, testRealm, testPassword, "REGISTER", testURI, testNonce, "", "", "")
	header := fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s", algorithm=MD5`,
		testUser, testRealm, testNonce, testURI, response)

	creds, err := ParseAuthorization(header)
	require.NoError(t, err)
	assert.Equal(t, testUser, creds.Username)
	assert.Equal(t, testNonce, creds.Nonce)

	require.NoError(t, v.Verify(creds, "REGISTER"))
}

func TestVerifyWithQopAuth(t *testing.T) {
	v := &Validator{Realm: testRealm, Nonce: testNonce, Password: testPassword}

	nc, cnonce := "00000001", "0a4f113b"
	response := clientDigest(testUser, testRealm, testPassword, "REGISTER", testURI, testNonce, nc, cnonce, "auth")
	header := fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s", algorithm=MD5, cnonce="%s", qop=auth, nc=%s`,
		testUser, testRealm, testNonce, testURI, response, cnonce, nc)

	creds, err := ParseAuthorization(header)
	require.NoError(t, err)
	assert.Equal(t, "auth", creds.Qop)

	require.NoError(t, v.Verify(creds, "REGISTER"))
}

func TestVerifyWrongPassword(t *testing.T) {
	v := &Validator{Realm: testRealm, Nonce: testNonce, Password: testPassword}

	response := clientDigest(testUser, testRealm, "wrong-secret", "REGISTER", testURI, testNonce, "", "", "")
	header := fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		testUser, testRealm, testNonce, testURI, response)

	creds, err := ParseAuthorization(header)
	require.NoError(t, err)
	assert.ErrorIs(t, v.Verify(creds, "REGISTER"), ErrBadDigest)
}

func TestVerifyForeignNonce(t *testing.T) {
	v := &Validator{Realm: testRealm, Nonce: testNonce, Password: testPassword}

	creds := &Credentials{
		Username: testUser,
		Realm:    testRealm,
		Nonce:    "0000000000000000000000000000000000",
		URI:      testURI,
		Response: "deadbeefdeadbeefdeadbeefdeadbeef",
	}
	assert.ErrorIs(t, v.Verify(creds, "REGISTER"), ErrStaleNonce)
}

func TestParseAuthorizationRejects(t *testing.T) {
	_, err := ParseAuthorization("Basic dXNlcjpwYXNz")
	assert.ErrorIs(t, err, ErrNoDigest)

	_, err = ParseAuthorization(`Digest realm="x"`)
	assert.Error(t, err)
}

func TestChallenge(t *testing.T) {
	v := &Validator{Realm: testRealm, Nonce: testNonce}
	assert.Equal(t,
		`Digest realm="gbt@future_oriented.com", nonce="f89d0eaccaf1c90453e2f84688ec800f05", algorithm=MD5, qop="auth"`,
		v.Challenge("md5"))
}
