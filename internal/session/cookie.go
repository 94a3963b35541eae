// Package session derives the dashboard identity from the signed session
// cookie. The cookie value is "<slug>.<base64url(hmac-sha256(slug))>"; a
// missing, unparseable, or tampered cookie resolves to no session rather
// than an error.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
)

// CookieName is the cookie carrying the signed session slug.
const CookieName = "session_slug"

// Signer signs and verifies session cookie values with a process-wide secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns value with its authenticity signature appended.
func (s *Signer) Sign(value string) string {
	return value + "." + base64.RawURLEncoding.EncodeToString(s.mac(value))
}

// Unsign verifies a signed cookie value and returns the original value.
// The boolean is false for any expected failure: no separator, bad
// encoding, or signature mismatch.
func (s *Signer) Unsign(signed string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 {
		return "", false
	}
	value := signed[:i]
	sig, err := base64.RawURLEncoding.DecodeString(signed[i+1:])
	if err != nil {
		return "", false
	}
	if !hmac.Equal(sig, s.mac(value)) {
		return "", false
	}
	return value, true
}

// Resolve extracts the session slug from the request cookie, if any.
func (s *Signer) Resolve(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return s.Unsign(cookie.Value)
}

func (s *Signer) mac(value string) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(value))
	return m.Sum(nil)
}
