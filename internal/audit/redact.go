package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"slices"
	"strings"
)

var secretPattern = regexp.MustCompile(`(?i)\b([a-z_]*(?:password|passwd|token|csrf|secret)[a-z_]*)\s*([=:])\s*("[^"]*"|[^\s;,&]+)`)

// Redact masks values of secret-looking keys in free text.
func Redact(s string) string {
	return secretPattern.ReplaceAllString(s, "$1$2[redacted]")
}

func sensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, word := range []string{"password", "passwd", "token", "csrf", "secret"} {
		if strings.Contains(k, word) {
			return true
		}
	}
	return false
}

// sensitive identifiers are kept comparable across entries without being
// stored in the clear.
var hashedKeys = []string{"email", "ip", "phone"}

// formatFields renders key=value pairs sorted by key. Secret values are
// dropped; contact details are salted hashes.
func formatFields(fields map[string]string, salt []byte) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		switch {
		case sensitiveKey(k):
			v = "[redacted]"
		case slices.Contains(hashedKeys, strings.ToLower(k)) && v != "":
			v = "sha256:" + hashString(v, salt)[:16]
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "; ")
}

func hashString(v string, salt []byte) string {
	h := sha256.New()
	if len(salt) > 0 {
		h.Write(salt)
	}
	h.Write([]byte(v))
	return hex.EncodeToString(h.Sum(nil))
}
