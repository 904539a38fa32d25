package talyn

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenExpirySkew is the safety buffer applied when judging expiry: a token
// within 30 seconds of its exp claim is already stale and must not be sent.
const TokenExpirySkew = 30 * time.Second

var tokenParser = jwt.NewParser()

// IsTokenExpired reports whether raw should be treated as expired. Every
// decode failure (empty input, malformed structure, invalid base64, missing
// exp) degrades to expired; the check is fail-closed and never panics.
func IsTokenExpired(raw string) bool {
	return isTokenExpiredAt(raw, time.Now())
}

func isTokenExpiredAt(raw string, now time.Time) bool {
	exp, err := TokenExpiry(raw)
	if err != nil {
		return true
	}
	return exp.Before(now.Add(TokenExpirySkew))
}

// TokenExpiry decodes the exp claim from the token's payload segment without
// verifying the signature. Signature verification is the server's job; the
// client only needs the expiry for the local staleness check.
func TokenExpiry(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, ErrNoToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := tokenParser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrTokenMalformed
	}

	return exp.Time, nil
}
