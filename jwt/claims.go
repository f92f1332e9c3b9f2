package jwtkit

import (
	"encoding/json"
	"time"
)

// Claims is the decoded token payload: the required claims plus whatever
// extension claims the issuer included, as a flat map. After a successful
// VerifyAndDecodeToken, sub, iat, and exp are guaranteed present; after
// DecodeUnsafe nothing is guaranteed beyond structural validity. The typed
// accessors return zero values for absent or mistyped claims.
type Claims map[string]any

// Get returns a raw claim value by name.
func (c Claims) Get(name string) (any, bool) {
	v, ok := c[name]
	return v, ok
}

// Subject returns the sub claim.
func (c Claims) Subject() string { return c.stringClaim("sub") }

// Issuer returns the iss claim.
func (c Claims) Issuer() string { return c.stringClaim("iss") }

// Email returns the email claim.
func (c Claims) Email() string { return c.stringClaim("email") }

// FullName returns the fullname claim.
func (c Claims) FullName() string { return c.stringClaim("fullname") }

// JTI returns the jti claim.
func (c Claims) JTI() string { return c.stringClaim("jti") }

// Audience returns the aud claim. Tokens minted by this package carry a
// single audience string; a list-valued aud from another issuer yields its
// first element.
func (c Claims) Audience() string {
	switch v := c["aud"].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// IssuedAt returns the iat claim as a UTC time, or the zero time when absent.
func (c Claims) IssuedAt() time.Time { return c.timeClaim("iat") }

// ExpiresAt returns the exp claim as a UTC time, or the zero time when absent.
func (c Claims) ExpiresAt() time.Time { return c.timeClaim("exp") }

func (c Claims) stringClaim(name string) string {
	s, _ := c[name].(string)
	return s
}

// timeClaim handles the numeric encodings a JSON decode can produce for a
// NumericDate.
func (c Claims) timeClaim(name string) time.Time {
	switch v := c[name].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case int64:
		return time.Unix(v, 0).UTC()
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0).UTC()
		}
	}
	return time.Time{}
}
