package voting

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ballotkey.org/internal/ids"
)

// sessionTokenExpired reports whether token is a JWT whose exp claim has
// passed. The signature is not checked; the backend stays authoritative and
// opaque tokens are never considered expired.
func sessionTokenExpired(token string, now time.Time) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

// mintBiometricToken returns a fresh device credential: a time-ordered ULID
// followed by 122 random bits.
func mintBiometricToken() string {
	return "bio_" + strings.ToLower(ids.New()) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
