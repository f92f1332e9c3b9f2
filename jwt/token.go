package jwtkit

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningAlgorithm is the single allowed JWS algorithm. It is pinned: tokens
// presenting any other alg are rejected before key lookup or signature work,
// which closes the algorithm-confusion attack class.
const SigningAlgorithm = "ES256"

// DefaultAccessTokenTTL applies when GenerateAccessToken is called without WithTTL.
const DefaultAccessTokenTTL = time.Hour

// Config holds the per-instance verification policy. All fields are optional:
// an empty Issuer or Audience disables that check, and a zero Leeway means no
// clock-skew tolerance.
type Config struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Operations is the stateless token protocol logic: it encodes claims into
// signed tokens and decodes and validates presented tokens against the
// configured policy. Multiple Operations with different policies may share
// one KeyManager. Safe for unrestricted concurrent use.
type Operations struct {
	keys     *KeyManager
	issuer   string
	audience string
	leeway   time.Duration
}

// NewOperations binds a verification policy to a KeyManager.
func NewOperations(keys *KeyManager, cfg Config) *Operations {
	return &Operations{
		keys:     keys,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
	}
}

type tokenParams struct {
	ttl      time.Duration
	email    string
	fullName string
	jti      bool
	extra    map[string]any
}

// TokenOption customizes a single GenerateAccessToken call.
type TokenOption func(*tokenParams)

// WithTTL overrides the default token lifetime. Zero and negative values are
// honored as-given and mint an already-expired token, which is valid input
// for exercising expiry handling.
func WithTTL(d time.Duration) TokenOption {
	return func(p *tokenParams) { p.ttl = d }
}

// WithEmail adds an email claim.
func WithEmail(email string) TokenOption {
	return func(p *tokenParams) { p.email = email }
}

// WithFullName adds a fullname claim.
func WithFullName(name string) TokenOption {
	return func(p *tokenParams) { p.fullName = name }
}

// WithJTI stamps a unique jti claim into the token.
func WithJTI() TokenOption {
	return func(p *tokenParams) { p.jti = true }
}

// WithExtraClaims merges caller-supplied claims into the payload. Callers
// must not use the reserved names sub, iat, exp, iss, or aud; this is a
// contract, not a runtime check.
func WithExtraClaims(claims map[string]any) TokenOption {
	return func(p *tokenParams) { p.extra = claims }
}

// GenerateAccessToken mints a signed token for the subject. The header
// carries the pinned algorithm, typ JWT, and the active kid; the payload
// carries sub, iat, exp (second precision, UTC), the instance's iss and aud
// when configured, and any optional claims. It has no side effects: nothing
// is logged, persisted, or cached.
func (o *Operations) GenerateAccessToken(subject string, opts ...TokenOption) (string, error) {
	params := tokenParams{ttl: DefaultAccessTokenTTL}
	for _, opt := range opts {
		opt(&params)
	}

	now := time.Now().UTC().Truncate(time.Second)
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(params.ttl).Unix(),
	}
	if o.issuer != "" {
		claims["iss"] = o.issuer
	}
	if o.audience != "" {
		claims["aud"] = o.audience
	}
	if params.email != "" {
		claims["email"] = params.email
	}
	if params.fullName != "" {
		claims["fullname"] = params.fullName
	}
	if params.jti {
		claims["jti"] = uuid.NewString()
	}
	for name, value := range params.extra {
		claims[name] = value
	}

	kid, key := o.keys.SigningKey()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwtkit: sign token: %w", err)
	}
	return signed, nil
}

// VerifyAndDecodeToken fully validates a presented token and returns its
// claims. The pipeline is strict and ordered; each stage fails with exactly
// one Kind from the taxonomy:
//
//  1. structural parse of the segments and header — ErrMalformedToken
//  2. alg must be the pinned algorithm, before any key work — ErrInvalidAlgorithm
//  3. kid missing — ErrMalformedToken; kid not in keyset — ErrUnknownKeyID
//  4. required claims sub/iat/exp present — ErrMalformedToken;
//     then signature verification — ErrInvalidSignature
//  5. now <= exp + leeway — ErrTokenExpired
//  6. iss match, only if configured — ErrInvalidIssuer
//  7. aud match, only if configured — ErrInvalidAudience
//
// On success the full claim map is returned unmodified, extension claims
// included.
func (o *Operations) VerifyAndDecodeToken(tokenString string) (Claims, error) {
	unverified, err := decodeUnverified(tokenString)
	if err != nil {
		return nil, newError(KindMalformedToken, "token is malformed", err)
	}

	alg, _ := unverified.Header["alg"].(string)
	if alg != SigningAlgorithm {
		return nil, newError(KindInvalidAlgorithm,
			fmt.Sprintf("algorithm %q is not allowed, only %s", alg, SigningAlgorithm), nil)
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, newError(KindMalformedToken, "token missing kid header", nil)
	}
	publicKey, err := o.keys.VerificationKey(kid)
	if err != nil {
		return nil, err
	}

	// Presence of the required claims is checked from the unverified decode so
	// that a missing claim wins over expiry deterministically; golang-jwt can
	// only require exp on its own.
	rawClaims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, newError(KindMalformedToken, "token payload is not a JSON object", nil)
	}
	for _, name := range []string{"sub", "iat", "exp"} {
		if _, present := rawClaims[name]; !present {
			return nil, newError(KindMalformedToken,
				fmt.Sprintf("token missing required claim %q", name), nil)
		}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(o.leeway),
	}
	if o.issuer != "" {
		options = append(options, jwt.WithIssuer(o.issuer))
	}
	if o.audience != "" {
		options = append(options, jwt.WithAudience(o.audience))
	}

	parsed, err := jwt.NewParser(options...).Parse(tokenString, func(*jwt.Token) (any, error) {
		return publicKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, newError(KindMalformedToken, "token payload is not a JSON object", nil)
	}
	return Claims(claims), nil
}

// DecodeUnsafe decodes the payload WITHOUT verifying the signature and
// without checking algorithm, kid, issuer, audience, or expiry. It exists for
// operational debugging only and must never feed an authorization decision.
// Structurally broken tokens still fail with ErrMalformedToken.
func (o *Operations) DecodeUnsafe(tokenString string) (Claims, error) {
	token, err := decodeUnverified(tokenString)
	if err != nil {
		return nil, newError(KindMalformedToken, "token is malformed", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, newError(KindMalformedToken, "token payload is not a JSON object", nil)
	}
	return Claims(claims), nil
}

func decodeUnverified(tokenString string) (*jwt.Token, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	return token, err
}

// classifyParseError maps golang-jwt's (possibly joined) errors onto the
// taxonomy. Signature failures are checked first: claim validation only runs
// after a good signature, so a sig error can never co-occur with the others.
// Among claim errors the pipeline order applies: expiry, then issuer, then
// audience. Anything unclassified is a malformed token.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newError(KindInvalidSignature, "invalid token signature", err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return newError(KindMalformedToken, "token missing required claim", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(KindTokenExpired, "token has expired", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return newError(KindInvalidIssuer, "invalid token issuer", err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return newError(KindInvalidAudience, "invalid token audience", err)
	default:
		return newError(KindMalformedToken, "token is malformed", err)
	}
}
