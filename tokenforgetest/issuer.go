// Package tokenforgetest provides a mock token issuer for testing
// applications that authenticate with tokenforge-minted tokens. It serves the
// issuer's JWKS over HTTP and can sign well-formed, expired, or deliberately
// broken tokens, enabling integration tests without real key provisioning.
//
// Example usage:
//
//	issuer := tokenforgetest.New()
//	defer issuer.Close()
//
//	token := issuer.Token("user-123")
//	claims, err := issuer.Operations().VerifyAndDecodeToken(token)
package tokenforgetest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	jwtkit "github.com/open-rails/tokenforge/jwt"
)

// Policy applied by the issuer's Operations.
const (
	Issuer   = "tokenforge-test-issuer"
	Audience = "tokenforge-test-audience"
)

// Key ids in the issuer's keyset. KeyID1 is active for a freshly constructed
// issuer; Rotate moves the active kid to KeyID2 while keeping both verifiable.
const (
	KeyID1 = "test-key-1"
	KeyID2 = "test-key-2"
)

// TestIssuer bundles a two-key KeyManager, an Operations instance, and an
// HTTP server exposing the JWKS at /.well-known/jwks.json.
type TestIssuer struct {
	keys    *jwtkit.KeyManager
	ops     *jwtkit.Operations
	server  *httptest.Server
	private map[string]*ecdsa.PrivateKey
	keyset  map[string]string
}

// New creates a test issuer with KeyID1 active and zero leeway. It panics on
// key generation failure; test helpers have no error path worth plumbing.
func New() *TestIssuer {
	private := map[string]*ecdsa.PrivateKey{
		KeyID1: generateKey(),
		KeyID2: generateKey(),
	}
	keyset := map[string]string{
		KeyID1: publicPEM(private[KeyID1]),
		KeyID2: publicPEM(private[KeyID2]),
	}
	return newWithActive(KeyID1, private, keyset)
}

func newWithActive(activeKID string, private map[string]*ecdsa.PrivateKey, keyset map[string]string) *TestIssuer {
	keys, err := jwtkit.NewKeyManager(activeKID, privatePEM(private[activeKID]), keyset)
	if err != nil {
		panic("tokenforgetest: build key manager: " + err.Error())
	}
	ti := &TestIssuer{
		keys:    keys,
		ops:     jwtkit.NewOperations(keys, jwtkit.Config{Issuer: Issuer, Audience: Audience}),
		private: private,
		keyset:  keyset,
	}

	mux := http.NewServeMux()
	mux.Handle("/.well-known/jwks.json", jwtkit.JWKSHandler(keys))
	ti.server = httptest.NewServer(mux)
	return ti
}

// Rotate returns a successor issuer with the same keyset and the other kid
// active, modeling a key rotation where old tokens must keep verifying.
// The successor has its own JWKS server; close both.
func (ti *TestIssuer) Rotate() *TestIssuer {
	next := KeyID2
	if ti.keys.ActiveKeyID() == KeyID2 {
		next = KeyID1
	}
	return newWithActive(next, ti.private, ti.keyset)
}

// URL returns the base URL of the JWKS server.
func (ti *TestIssuer) URL() string { return ti.server.URL }

// KeyManager returns the issuer's key manager.
func (ti *TestIssuer) KeyManager() *jwtkit.KeyManager { return ti.keys }

// Operations returns the issuer's token operations.
func (ti *TestIssuer) Operations() *jwtkit.Operations { return ti.ops }

// Close shuts down the JWKS server.
func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

// Token mints a valid one-hour token for the subject.
func (ti *TestIssuer) Token(subject string) string {
	return ti.mint(subject)
}

// TokenWithClaims mints a valid token carrying extra claims.
func (ti *TestIssuer) TokenWithClaims(subject string, extra map[string]any) string {
	return ti.mint(subject, jwtkit.WithExtraClaims(extra))
}

// ExpiredToken mints a token that expired an hour ago.
func (ti *TestIssuer) ExpiredToken(subject string) string {
	return ti.mint(subject, jwtkit.WithTTL(-time.Hour))
}

func (ti *TestIssuer) mint(subject string, opts ...jwtkit.TokenOption) string {
	token, err := ti.ops.GenerateAccessToken(subject, opts...)
	if err != nil {
		panic("tokenforgetest: sign token: " + err.Error())
	}
	return token
}

// TokenSignedWithUnknownKey signs with a fresh key whose kid is absent from
// the issuer's keyset, for exercising the unknown-kid rejection path.
func (ti *TestIssuer) TokenSignedWithUnknownKey(subject string) string {
	rogue := generateKey()
	return signRaw(ti.baseClaims(subject), "rogue-key", jwt.SigningMethodES256, rogue)
}

// HS256Token builds an algorithm-confusion fixture: a symmetric token whose
// header names the issuer's active kid. Verifiers must reject it on alg alone.
func (ti *TestIssuer) HS256Token(subject string) string {
	return signRaw(ti.baseClaims(subject), ti.keys.ActiveKeyID(), jwt.SigningMethodHS256, []byte("hmac-secret"))
}

// TokenWithoutKID signs with the active private key but omits the kid header.
func (ti *TestIssuer) TokenWithoutKID(subject string) string {
	_, key := ti.keys.SigningKey()
	return signRaw(ti.baseClaims(subject), "", jwt.SigningMethodES256, key)
}

// TokenWithoutSubject signs a properly keyed token missing the sub claim.
func (ti *TestIssuer) TokenWithoutSubject() string {
	kid, key := ti.keys.SigningKey()
	claims := ti.baseClaims("")
	delete(claims, "sub")
	return signRaw(claims, kid, jwt.SigningMethodES256, key)
}

func (ti *TestIssuer) baseClaims(subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": subject,
		"iss": Issuer,
		"aud": Audience,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

func signRaw(claims jwt.MapClaims, kid string, method jwt.SigningMethod, key any) string {
	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		panic("tokenforgetest: sign token: " + err.Error())
	}
	return signed
}

func generateKey() *ecdsa.PrivateKey {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic("tokenforgetest: generate key: " + err.Error())
	}
	return key
}

func privatePEM(key *ecdsa.PrivateKey) string {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		panic("tokenforgetest: encode private key: " + err.Error())
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func publicPEM(key *ecdsa.PrivateKey) string {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		panic("tokenforgetest: encode public key: " + err.Error())
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}
