package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Rounds = 200000
	pbkdf2KeyLen = 32
	saltBytes    = 16
)

// HashPassword returns a fresh hex salt and the hex PBKDF2-SHA256 digest.
func HashPassword(password string) (salt, hash string, err error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	salt = hex.EncodeToString(buf)
	return salt, derive(password, buf), nil
}

// VerifyPassword compares password against a stored salt and digest.
// Salts that are not valid hex are used as raw bytes.
func VerifyPassword(password, salt, hash string) bool {
	raw, err := hex.DecodeString(salt)
	if err != nil {
		raw = []byte(salt)
	}
	got := derive(password, raw)
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1
}

func derive(password string, salt []byte) string {
	return hex.EncodeToString(pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, pbkdf2KeyLen, sha256.New))
}

// PolicyErrors lists every rule the password breaks; nil means acceptable.
func PolicyErrors(password string) []string {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}

	var errs []string
	if len([]rune(password)) < 10 {
		errs = append(errs, "minimum 10 characters")
	}
	if !upper {
		errs = append(errs, "at least one uppercase letter")
	}
	if !lower {
		errs = append(errs, "at least one lowercase letter")
	}
	if !digit {
		errs = append(errs, "at least one number")
	}
	if !symbol {
		errs = append(errs, "at least one symbol")
	}
	return errs
}
