// Package bearer exports access tokens as signed JWTs for transport to
// clients. The JWT is a sealed envelope around the opaque token id: the
// server never trusts claims beyond the id, which it re-resolves against
// the store on every use.
package bearer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medid/internal/token/models"
	id "medid/pkg/domain"
	dErrors "medid/pkg/domain-errors"
)

const issuer = "medid"

// Codec signs and verifies bearer envelopes with a shared HMAC key.
type Codec struct {
	key []byte
}

// NewCodec constructs a codec. The key must be at least 32 bytes.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) < 32 {
		return nil, errors.New("bearer signing key must be at least 32 bytes")
	}
	return &Codec{key: key}, nil
}

type claims struct {
	jwt.RegisteredClaims
	TokenID string `json:"tid"`
}

// Encode wraps the token id in an HS256 JWT whose expiry mirrors the
// access token's own.
func (c *Codec) Encode(token models.AccessToken) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   token.IssuedTo.String(),
			IssuedAt:  jwt.NewNumericDate(token.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(token.ExpiresAt),
		},
		TokenID: token.ID.String(),
	}).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign bearer token: %w", err)
	}
	return signed, nil
}

// Decode verifies the envelope and returns the embedded token id. Every
// failure mode collapses to the same access-denied error so callers cannot
// distinguish a forged signature from an expired envelope.
func (c *Codec) Decode(raw string) (id.TokenID, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.key, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired(), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return "", dErrors.New(dErrors.CodeAccessDenied, "access denied")
	}
	tokenID, err := id.ParseTokenID(parsed.TokenID)
	if err != nil {
		return "", dErrors.New(dErrors.CodeAccessDenied, "access denied")
	}
	return tokenID, nil
}
