package jwtkit

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"
)

// KeyManager owns the active ES256 signing key and the set of public keys
// accepted for verification. The keyset may contain retired key ids whose
// private keys are gone, so tokens issued before a rotation keep verifying
// until they expire.
//
// A KeyManager is immutable after construction and safe for concurrent use
// without locking. Rotation is copy-on-write: build a new KeyManager with the
// new active kid and the union keyset, then swap the reference callers hold.
type KeyManager struct {
	activeKID  string
	signingKey *ecdsa.PrivateKey
	keyset     map[string]*ecdsa.PublicKey
}

// NewKeyManager parses all key material eagerly. privateKeyPEM must be an
// unencrypted PKCS8 ECDSA P-256 private key; every keyset value must be a
// SubjectPublicKeyInfo PEM for a P-256 public key. Any malformed or
// wrong-curve input fails construction, so a constructed manager can never
// fail to produce a key it has already validated.
func NewKeyManager(activeKID, privateKeyPEM string, keyset map[string]string) (*KeyManager, error) {
	if activeKID == "" {
		return nil, errors.New("jwtkit: active key id must not be empty")
	}
	signingKey, err := ParseECPrivateKeyPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("jwtkit: parse private key for kid %q: %w", activeKID, err)
	}
	publicKeys := make(map[string]*ecdsa.PublicKey, len(keyset))
	for kid, publicPEM := range keyset {
		pub, err := ParseECPublicKeyPEM([]byte(publicPEM))
		if err != nil {
			return nil, fmt.Errorf("jwtkit: parse public key for kid %q: %w", kid, err)
		}
		publicKeys[kid] = pub
	}
	return &KeyManager{
		activeKID:  activeKID,
		signingKey: signingKey,
		keyset:     publicKeys,
	}, nil
}

// ActiveKeyID returns the kid stamped into newly signed tokens.
func (m *KeyManager) ActiveKeyID() string { return m.activeKID }

// SigningKey returns the active kid and its private key. It cannot fail:
// construction already validated the key.
func (m *KeyManager) SigningKey() (string, *ecdsa.PrivateKey) {
	return m.activeKID, m.signingKey
}

// VerificationKey resolves a public key by kid. An absent kid reports
// ErrUnknownKeyID, which is deliberately distinct from a signature failure:
// the remediation is refreshing the keyset, not rejecting a forgery.
func (m *KeyManager) VerificationKey(kid string) (*ecdsa.PublicKey, error) {
	pub, ok := m.keyset[kid]
	if !ok {
		return nil, newError(KindUnknownKeyID, fmt.Sprintf("unknown key id %q", kid), nil)
	}
	return pub, nil
}

// KeyIDs returns the keyset's key ids in sorted order.
func (m *KeyManager) KeyIDs() []string {
	kids := make([]string, 0, len(m.keyset))
	for kid := range m.keyset {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return kids
}

// ParseECPrivateKeyPEM parses an unencrypted PKCS8 PEM block into an ECDSA
// P-256 private key.
func ParseECPrivateKeyPEM(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKCS8 private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an ECDSA key")
	}
	if key.Curve != elliptic.P256() {
		return nil, errors.New("private key curve is not P-256")
	}
	return key, nil
}

// ParseECPublicKeyPEM parses a SubjectPublicKeyInfo PEM block into an ECDSA
// P-256 public key.
func ParseECPublicKeyPEM(pemBytes []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKIX public key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an ECDSA key")
	}
	if key.Curve != elliptic.P256() {
		return nil, errors.New("public key curve is not P-256")
	}
	return key, nil
}
