// Package auth is the identity provider: it verifies participant bearer
// tokens and keeps the raw credential for forwarding to backend analysis.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors
var (
	ErrTokenMissing = errors.New("missing bearer token")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

const tokenTypeAccess = "access"

// Identity is the authenticated participant
type Identity struct {
	ParticipantID string
	Credential    string
}

type tokenClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 participant tokens
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses the raw token and returns the participant identity
func (v *Verifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrTokenMissing
	}
	if len(v.secret) == 0 {
		return Identity{}, ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrTokenInvalid
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Identity{}, ErrTokenInvalid
	}
	if claims.TokenType != tokenTypeAccess || claims.Subject == "" {
		return Identity{}, ErrTokenInvalid
	}

	return Identity{ParticipantID: claims.Subject, Credential: raw}, nil
}

// Issuer signs participant tokens, used by tooling and tests
type Issuer struct {
	secret []byte
	issuer string
}

// NewIssuer creates a token issuer
func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer}
}

// Issue signs an access token for a participant
func (i *Issuer) Issue(participantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

type contextKey struct{}

// WithIdentity stores the identity in the context
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithIdentity
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
