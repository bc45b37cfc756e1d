package credentials

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry decodes the exp claim of a JWT access token without verifying
// its signature. Opaque tokens report false.
func TokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether token is a JWT whose exp lies before now+skew.
// Opaque tokens never report expired; the server decides with a 401.
func Expired(token string, now time.Time, skew time.Duration) bool {
	exp, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return !exp.After(now.Add(skew))
}
