// Package token signs and verifies the self-issued session JWT.
//
// Verification is a pure function of the token string, the shared secret and
// the supplied clock reading. Only HS256 is accepted.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidSignature is returned when the signature does not match the secret
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrExpired is returned when the token's expiry is before the verification time
	ErrExpired = errors.New("token expired")

	// ErrMalformed is returned when the token cannot be decoded or lacks required claims
	ErrMalformed = errors.New("malformed token")
)

// Claims is the identity carried by a session token.
type Claims struct {
	SubjectID string
	Email     string
	PlanTier  string
}

// Token is a verified token with its registered metadata.
type Token struct {
	Claims
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	PlanType string `json:"planType,omitempty"`
}

var hs256 = jwt.SigningMethodHS256

// Sign issues an HS256 token for claims valid until expiresAt. The exp claim
// has one-second resolution, so expiresAt must be a whole second.
func Sign(claims Claims, secret []byte, issuedAt, expiresAt time.Time) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("signing secret is empty")
	}
	if claims.SubjectID == "" {
		return "", fmt.Errorf("subject is required")
	}
	if !expiresAt.Equal(expiresAt.Truncate(time.Second)) {
		return "", fmt.Errorf("expiry must be a whole second")
	}
	if !expiresAt.After(issuedAt) {
		return "", fmt.Errorf("expiry must be after issue time")
	}

	sc := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   claims.SubjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:    claims.Email,
		PlanType: claims.PlanTier,
	}

	signed, err := jwt.NewWithClaims(hs256, sc).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claims.
// A token is valid while now is not after its expiry.
func Verify(tokenString string, secret []byte, now time.Time) (*Claims, error) {
	t, err := Parse(tokenString, secret, now)
	if err != nil {
		return nil, err
	}
	return &t.Claims, nil
}

// Parse is Verify plus the token id and timestamps, which revocation needs.
func Parse(tokenString string, secret []byte, now time.Time) (*Token, error) {
	if tokenString == "" {
		return nil, ErrMalformed
	}
	if len(secret) == 0 {
		return nil, ErrInvalidSignature
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{hs256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	sc := &sessionClaims{}
	_, err := parser.ParseWithClaims(tokenString, sc, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if sc.Subject == "" || sc.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing sub or exp", ErrMalformed)
	}
	if now.After(sc.ExpiresAt.Time) {
		return nil, ErrExpired
	}

	t := &Token{
		Claims: Claims{
			SubjectID: sc.Subject,
			Email:     sc.Email,
			PlanTier:  sc.PlanType,
		},
		ID:        sc.ID,
		ExpiresAt: sc.ExpiresAt.Time,
	}
	if sc.IssuedAt != nil {
		t.IssuedAt = sc.IssuedAt.Time
	}
	return t, nil
}
