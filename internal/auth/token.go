package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ResetTokenTTL is how long a password reset link stays valid.
const ResetTokenTTL = 30 * time.Minute

const resetAudience = "atlas-password-reset"

var ErrInvalidToken = errors.New("invalid or expired token")

// ResetClaims identifies the user and the single-use token id (jti).
type ResetClaims struct {
	UserID  int64
	TokenID string
	Expires time.Time
}

// TokenIssuer mints and parses password reset tokens.
type TokenIssuer struct {
	key []byte
	now func() time.Time
}

func NewTokenIssuer(key []byte) *TokenIssuer {
	return &TokenIssuer{key: key, now: time.Now}
}

// IssueReset returns a signed token and its claims. The caller records the
// TokenID so the link can be used once.
func (t *TokenIssuer) IssueReset(userID int64) (string, ResetClaims, error) {
	now := t.now()
	claims := ResetClaims{
		UserID:  userID,
		TokenID: uuid.NewString(),
		Expires: now.Add(ResetTokenTTL),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ID:        claims.TokenID,
		Audience:  jwt.ClaimStrings{resetAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(claims.Expires),
	})
	signed, err := tok.SignedString(t.key)
	if err != nil {
		return "", ResetClaims{}, fmt.Errorf("sign reset token: %w", err)
	}
	return signed, claims, nil
}

// ParseReset validates signature, audience and expiry.
func (t *TokenIssuer) ParseReset(raw string) (ResetClaims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &rc, func(*jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(resetAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return ResetClaims{}, ErrInvalidToken
	}

	uid, err := strconv.ParseInt(rc.Subject, 10, 64)
	if err != nil || uid <= 0 || rc.ID == "" {
		return ResetClaims{}, ErrInvalidToken
	}
	return ResetClaims{UserID: uid, TokenID: rc.ID, Expires: rc.ExpiresAt.Time}, nil
}
