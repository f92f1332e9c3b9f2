package jwtkit_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	jwtkit "github.com/open-rails/tokenforge/jwt"
)

func TestClaims_TypedAccessors(t *testing.T) {
	claims := jwtkit.Claims{
		"sub":      "user123",
		"iss":      "svc",
		"aud":      "api",
		"email":    "user@example.com",
		"fullname": "Test User",
		"jti":      "abc-123",
		"iat":      float64(1767225600),
		"exp":      float64(1767229200),
	}

	assert.Equal(t, "user123", claims.Subject())
	assert.Equal(t, "svc", claims.Issuer())
	assert.Equal(t, "api", claims.Audience())
	assert.Equal(t, "user@example.com", claims.Email())
	assert.Equal(t, "Test User", claims.FullName())
	assert.Equal(t, "abc-123", claims.JTI())
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), claims.IssuedAt())
	assert.Equal(t, time.Unix(1767229200, 0).UTC(), claims.ExpiresAt())
}

func TestClaims_ZeroValuesWhenAbsent(t *testing.T) {
	claims := jwtkit.Claims{}
	assert.Empty(t, claims.Subject())
	assert.Empty(t, claims.Audience())
	assert.True(t, claims.IssuedAt().IsZero())
	assert.True(t, claims.ExpiresAt().IsZero())

	_, ok := claims.Get("anything")
	assert.False(t, ok)
}

func TestClaims_AudienceList(t *testing.T) {
	claims := jwtkit.Claims{"aud": []any{"api", "web"}}
	assert.Equal(t, "api", claims.Audience())

	claims = jwtkit.Claims{"aud": []any{}}
	assert.Empty(t, claims.Audience())

	claims = jwtkit.Claims{"aud": 42}
	assert.Empty(t, claims.Audience())
}

func TestClaims_TimeEncodings(t *testing.T) {
	want := time.Unix(1767225600, 0).UTC()
	assert.Equal(t, want, jwtkit.Claims{"iat": float64(1767225600)}.IssuedAt())
	assert.Equal(t, want, jwtkit.Claims{"iat": int64(1767225600)}.IssuedAt())
	assert.Equal(t, want, jwtkit.Claims{"iat": json.Number("1767225600")}.IssuedAt())
	assert.True(t, jwtkit.Claims{"iat": "not a number"}.IssuedAt().IsZero())
}
