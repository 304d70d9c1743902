package multipart

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vaultdrive/vaultdrive/xfererr"
)

// tokenTTL is the UploadToken lifetime (spec §3, §5: "24h expiry").
const tokenTTL = 24 * time.Hour

// MaxChunkSize bounds any single part's content length, independent of the
// per-session claimed total (spec §4.6.2 step 4).
const MaxChunkSize = 32 * 1024 * 1024

// MaxPartNumber is the highest part number a client may address (spec §4.6.2
// step 3: "part_number ∈ [1, 10000]").
const MaxPartNumber = 10000

// Claims carries every fact the coordinator needs to accept a part or
// finalize an upload without consulting the database (spec §3's
// UploadToken). The server never trusts these values except as recovered
// from a verified signature.
type Claims struct {
	jwt.RegisteredClaims

	SessionID        string `json:"sid"`
	FileID           string `json:"fid"`
	ProviderUploadID string `json:"uid"`
	OwnerID          string `json:"oid"`
	Filename         string `json:"fn"`
	ContentType      string `json:"ct"`
	TotalSize        int64  `json:"sz"`
	MaxChunkSize     int64  `json:"mcs"`
	ParentID         *string `json:"pid,omitempty"`
	ClientModifiedAt time.Time `json:"cma"`
}

// Signer mints and verifies UploadTokens with a single HMAC secret, grounded
// on the teacher pack's own HS256 JWTService pattern.
type Signer struct {
	secret []byte
	issuer string
}

// NewSigner builds a Signer. secret must be at least 32 bytes, matching the
// minimum HMAC key strength the pack's own JWT services enforce.
func NewSigner(secret, issuer string) (*Signer, error) {
	if len(secret) < 32 {
		return nil, errors.New("multipart: signing secret must be at least 32 characters")
	}
	if issuer == "" {
		issuer = "vaultdrive"
	}
	return &Signer{secret: []byte(secret), issuer: issuer}, nil
}

// Mint signs a new token carrying claims for session. issuedAt is threaded
// in by the caller rather than read from time.Now, keeping the coordinator
// the only place that touches wall-clock time.
func (s *Signer) Mint(claims Claims, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(tokenTTL)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   claims.FileID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, xfererr.Wrap(xfererr.Internal, err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of tokenString and returns its
// claims. Expired or malformed tokens fail before any part bytes are read,
// per spec §5's cancellation rule.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, xfererr.New(xfererr.Unauthorized, "upload token has expired")
		}
		return nil, xfererr.New(xfererr.Unauthorized, "upload token is invalid")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, xfererr.New(xfererr.Unauthorized, "upload token is invalid")
	}
	return claims, nil
}
