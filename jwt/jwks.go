package jwtkit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// JWKS returns the verification keyset as a JWK set suitable for publishing
// to relying parties. Every keyset entry appears with its kid, alg ES256, and
// use sig. Publishing only: this package never fetches remote JWKS.
func (m *KeyManager) JWKS() (jwk.Set, error) {
	set := jwk.NewSet()
	for _, kid := range m.KeyIDs() {
		key, err := jwk.FromRaw(m.keyset[kid])
		if err != nil {
			return nil, fmt.Errorf("jwtkit: convert public key %q: %w", kid, err)
		}
		if err := key.Set(jwk.KeyIDKey, kid); err != nil {
			return nil, fmt.Errorf("jwtkit: set kid on %q: %w", kid, err)
		}
		if err := key.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
			return nil, fmt.Errorf("jwtkit: set alg on %q: %w", kid, err)
		}
		if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
			return nil, fmt.Errorf("jwtkit: set use on %q: %w", kid, err)
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("jwtkit: add key %q to set: %w", kid, err)
		}
	}
	return set, nil
}

// ServeJWKS writes the key set as JSON with a stable ETag and cache headers.
func ServeJWKS(w http.ResponseWriter, r *http.Request, set jwk.Set) {
	// Marshal first to compute a stable ETag for conditional GETs
	body, err := json.Marshal(set)
	if err != nil {
		http.Error(w, "failed to encode key set", http.StatusInternalServerError)
		return
	}
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
	w.Header().Set("ETag", etag)
	_, _ = w.Write(body)
}

// JWKSHandler serves the manager's public keys, typically mounted at
// /.well-known/jwks.json.
func JWKSHandler(m *KeyManager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set, err := m.JWKS()
		if err != nil {
			http.Error(w, "failed to build key set", http.StatusInternalServerError)
			return
		}
		ServeJWKS(w, r, set)
	})
}
