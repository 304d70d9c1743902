package api

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vaultdrive/vaultdrive/xfererr"
)

// SessionClaims is the external bearer-session token this service accepts
// as the AuthContext provider (spec §6): a signed JWT whose subject is the
// owner id.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// OwnerID returns the authenticated owner id carried in Subject.
func (c SessionClaims) OwnerID() string { return c.Subject }

// SessionVerifier validates bearer session tokens. It does not mint them;
// session issuance belongs to whatever external identity system fronts
// this service (spec §6 treats AuthContext as an external collaborator).
type SessionVerifier struct {
	secret []byte
}

// NewSessionVerifier builds a verifier. secret must be at least 32 bytes,
// the same floor multipart.NewSigner enforces.
func NewSessionVerifier(secret string) (*SessionVerifier, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	return &SessionVerifier{secret: []byte(secret)}, nil
}

// Verify parses and validates tokenString, returning its claims.
func (v *SessionVerifier) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, xfererr.Wrap(xfererr.Unauthorized, err)
	}
	return claims, nil
}
