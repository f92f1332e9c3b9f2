package jwtkit_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtkit "github.com/open-rails/tokenforge/jwt"
)

type keyPair struct {
	kid        string
	privatePEM string
	publicPEM  string
	key        *ecdsa.PrivateKey
}

func newKeyPair(t *testing.T, kid string) keyPair {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return keyPair{
		kid:        kid,
		privatePEM: encodePrivatePEM(t, key),
		publicPEM:  encodePublicPEM(t, &key.PublicKey),
		key:        key,
	}
}

func encodePrivatePEM(t *testing.T, key *ecdsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func encodePublicPEM(t *testing.T, key *ecdsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func newTestManager(t *testing.T, active keyPair, others ...keyPair) *jwtkit.KeyManager {
	t.Helper()
	keyset := map[string]string{active.kid: active.publicPEM}
	for _, kp := range others {
		keyset[kp.kid] = kp.publicPEM
	}
	km, err := jwtkit.NewKeyManager(active.kid, active.privatePEM, keyset)
	require.NoError(t, err)
	return km
}

func TestNewKeyManager_Success(t *testing.T) {
	kp1 := newKeyPair(t, "key-2026-01")
	kp2 := newKeyPair(t, "key-2026-02")

	km := newTestManager(t, kp1, kp2)

	kid, signingKey := km.SigningKey()
	assert.Equal(t, kp1.kid, kid)
	assert.True(t, kp1.key.PublicKey.Equal(&signingKey.PublicKey))
	assert.Equal(t, kp1.kid, km.ActiveKeyID())

	for _, kp := range []keyPair{kp1, kp2} {
		pub, err := km.VerificationKey(kp.kid)
		require.NoError(t, err)
		assert.True(t, kp.key.PublicKey.Equal(pub))
	}
}

func TestNewKeyManager_EmptyActiveKID(t *testing.T) {
	kp := newKeyPair(t, "key-1")
	_, err := jwtkit.NewKeyManager("", kp.privatePEM, map[string]string{kp.kid: kp.publicPEM})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active key id")
}

func TestNewKeyManager_MalformedPrivateKey(t *testing.T) {
	kp := newKeyPair(t, "key-1")
	_, err := jwtkit.NewKeyManager("key-1", "not a pem", map[string]string{kp.kid: kp.publicPEM})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse private key")
}

func TestNewKeyManager_MalformedPublicKey(t *testing.T) {
	kp := newKeyPair(t, "key-1")
	_, err := jwtkit.NewKeyManager("key-1", kp.privatePEM, map[string]string{
		kp.kid:      kp.publicPEM,
		"key-stale": "-----BEGIN PUBLIC KEY-----\ngarbage\n-----END PUBLIC KEY-----\n",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parse public key for kid "key-stale"`)
}

func TestNewKeyManager_RejectsNonP256PrivateKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	kp := newKeyPair(t, "key-1")
	_, err = jwtkit.NewKeyManager("key-1", encodePrivatePEM(t, key), map[string]string{kp.kid: kp.publicPEM})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not P-256")
}

func TestNewKeyManager_RejectsNonP256PublicKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	kp := newKeyPair(t, "key-1")
	_, err = jwtkit.NewKeyManager("key-1", kp.privatePEM, map[string]string{
		kp.kid:   kp.publicPEM,
		"key-p384": encodePublicPEM(t, &key.PublicKey),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not P-256")
}

func TestVerificationKey_UnknownKID(t *testing.T) {
	km := newTestManager(t, newKeyPair(t, "key-1"))

	_, err := km.VerificationKey("never-seen")
	require.Error(t, err)
	assert.ErrorIs(t, err, jwtkit.ErrUnknownKeyID)
	assert.Equal(t, jwtkit.KindUnknownKeyID, jwtkit.KindOf(err))
	assert.False(t, errors.Is(err, jwtkit.ErrInvalidSignature))
}

func TestKeyIDs_Sorted(t *testing.T) {
	km := newTestManager(t,
		newKeyPair(t, "key-b"),
		newKeyPair(t, "key-c"),
		newKeyPair(t, "key-a"),
	)
	assert.Equal(t, []string{"key-a", "key-b", "key-c"}, km.KeyIDs())
}
