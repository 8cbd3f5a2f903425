package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signer appends and verifies HMAC-SHA256 signatures on cookie values.
type Signer struct {
	key []byte
}

func NewSigner(key []byte) *Signer {
	return &Signer{key: key}
}

// Sign returns "value.hexmac".
func (s *Signer) Sign(value string) string {
	return value + "." + s.mac(value)
}

// Unsign returns the value when the signature is valid.
func (s *Signer) Unsign(signed string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 {
		return "", false
	}
	value, mac := signed[:i], signed[i+1:]
	if !hmac.Equal([]byte(mac), []byte(s.mac(value))) {
		return "", false
	}
	return value, true
}

// HashClientValue keys a tagged client attribute (IP, user agent) so it can
// be stored without the raw value. Empty input hashes to "".
func (s *Signer) HashClientValue(tag, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return s.mac(tag + ":" + value)
}

func (s *Signer) mac(v string) string {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(v))
	return hex.EncodeToString(m.Sum(nil))
}
