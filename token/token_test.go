package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	issuedAt   = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	expiresAt  = issuedAt.Add(time.Hour)
)

func testClaims() Claims {
	return Claims{
		SubjectID: "3b241101-e2bb-4255-8caf-4136c566a962",
		Email:     "ana@example.com",
		PlanTier:  "pro",
	}
}

func signTest(t *testing.T) string {
	t.Helper()
	signed, err := Sign(testClaims(), testSecret, issuedAt, expiresAt)
	require.NoError(t, err)
	return signed
}

func TestSignVerify_RoundTrip(t *testing.T) {
	signed := signTest(t)

	claims, err := Verify(signed, testSecret, issuedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, testClaims(), *claims)
}

func TestSignVerify_RoundTripUntilExpiry(t *testing.T) {
	issued := issuedAt.Add(250 * time.Millisecond)
	signed, err := Sign(testClaims(), testSecret, issued, expiresAt)
	require.NoError(t, err)

	for _, at := range []time.Time{issued, expiresAt.Add(-100 * time.Millisecond), expiresAt} {
		claims, err := Verify(signed, testSecret, at)
		require.NoError(t, err, at)
		assert.Equal(t, testClaims(), *claims)
	}

	_, err = Verify(signed, testSecret, expiresAt.Add(time.Millisecond))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestParse_Metadata(t *testing.T) {
	signed := signTest(t)

	parsed, err := Parse(signed, testSecret, issuedAt)
	require.NoError(t, err)
	assert.NotEmpty(t, parsed.ID)
	assert.True(t, parsed.ExpiresAt.Equal(expiresAt))
	assert.True(t, parsed.IssuedAt.Equal(issuedAt))
}

func TestSign_UniqueIDs(t *testing.T) {
	a, err := Parse(signTest(t), testSecret, issuedAt)
	require.NoError(t, err)
	b, err := Parse(signTest(t), testSecret, issuedAt)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestVerify_Expiry(t *testing.T) {
	signed := signTest(t)

	tests := []struct {
		name    string
		now     time.Time
		wantErr error
	}{
		{"before expiry", expiresAt.Add(-time.Second), nil},
		{"exactly at expiry", expiresAt, nil},
		{"one second after expiry", expiresAt.Add(time.Second), ErrExpired},
		{"long after expiry", expiresAt.Add(24 * time.Hour), ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := Verify(signed, testSecret, tt.now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testClaims().SubjectID, claims.SubjectID)
		})
	}
}

func TestVerify_InvalidSignature(t *testing.T) {
	signed := signTest(t)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := Verify(signed, []byte("another-secret-another-secret-xx"), issuedAt)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong secret wins over expiry", func(t *testing.T) {
		_, err := Verify(signed, []byte("another-secret-another-secret-xx"), expiresAt.Add(time.Hour))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		other := Claims{SubjectID: "attacker", PlanTier: "pro"}
		forged, err := Sign(other, []byte("attacker-secret-attacker-secret!"), issuedAt, expiresAt)
		require.NoError(t, err)

		orig := strings.Split(signed, ".")
		forgedParts := strings.Split(forged, ".")
		spliced := orig[0] + "." + forgedParts[1] + "." + orig[2]

		_, err = Verify(spliced, testSecret, issuedAt)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("alg none rejected", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": "someone",
			"exp": expiresAt.Unix(),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = Verify(unsigned, testSecret, issuedAt)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := Verify(signed, nil, issuedAt)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestVerify_Malformed(t *testing.T) {
	signWith := func(t *testing.T, claims jwt.MapClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"empty", func(*testing.T) string { return "" }},
		{"garbage", func(*testing.T) string { return "not-a-token" }},
		{"two segments", func(*testing.T) string { return "abc.def" }},
		{"bad base64", func(*testing.T) string { return "!!!.???.***" }},
		{"missing subject", func(t *testing.T) string {
			return signWith(t, jwt.MapClaims{"exp": expiresAt.Unix()})
		}},
		{"missing expiry", func(t *testing.T) string {
			return signWith(t, jwt.MapClaims{"sub": "someone"})
		}},
		{"non-numeric expiry", func(t *testing.T) string {
			return signWith(t, jwt.MapClaims{"sub": "someone", "exp": "tomorrow"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := Verify(tt.token(t), testSecret, issuedAt)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
			assert.Nil(t, claims)
		})
	}
}

func TestSign_Validation(t *testing.T) {
	_, err := Sign(testClaims(), nil, issuedAt, expiresAt)
	assert.Error(t, err)

	_, err = Sign(Claims{}, testSecret, issuedAt, expiresAt)
	assert.Error(t, err)

	_, err = Sign(testClaims(), testSecret, issuedAt, issuedAt)
	assert.Error(t, err)

	_, err = Sign(testClaims(), testSecret, issuedAt, expiresAt.Add(900*time.Millisecond))
	assert.Error(t, err)
}
