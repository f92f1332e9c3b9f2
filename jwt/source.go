package jwtkit

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Environment variables read by KeyConfigFromEnv.
const (
	EnvActiveKeyID   = "TOKENFORGE_ACTIVE_KID"
	EnvPrivateKeyPEM = "TOKENFORGE_PRIVATE_KEY_PEM"
	EnvPublicKeys    = "TOKENFORGE_PUBLIC_KEYS"
)

// DefaultKeysPath is where AutoKeyConfig looks for a mounted keys.json when
// the environment carries no key material.
const DefaultKeysPath = "/etc/tokenforge"

const keysFileName = "keys.json"

// KeyConfig carries PEM key material in transit between a configuration
// source and NewKeyManager. Loaders return it to the caller, who constructs
// the KeyManager once at startup and injects it; nothing here is cached or
// re-read mid-process.
type KeyConfig struct {
	ActiveKeyID   string            `json:"active_key_id"`
	PrivateKeyPEM string            `json:"active_private_key_pem"`
	PublicKeyPEMs map[string]string `json:"public_keys"`
}

// NewKeyManager builds the manager from this config. When PublicKeyPEMs does
// not contain the active kid, its public key is derived from the private key
// so self-issued tokens always self-verify.
func (c *KeyConfig) NewKeyManager() (*KeyManager, error) {
	keyset := make(map[string]string, len(c.PublicKeyPEMs)+1)
	for kid, publicPEM := range c.PublicKeyPEMs {
		keyset[kid] = publicPEM
	}
	if _, ok := keyset[c.ActiveKeyID]; !ok {
		publicPEM, err := derivePublicKeyPEM(c.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("jwtkit: derive public key for kid %q: %w", c.ActiveKeyID, err)
		}
		keyset[c.ActiveKeyID] = publicPEM
	}
	return NewKeyManager(c.ActiveKeyID, c.PrivateKeyPEM, keyset)
}

// WriteFile persists the config as keys.json (mode 0600), the same format
// KeyConfigFromFile reads. Intended for development setups that want
// generated keys to survive restarts.
func (c *KeyConfig) WriteFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("jwtkit: encode key config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("jwtkit: create key config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("jwtkit: write key config: %w", err)
	}
	return nil
}

// KeyConfigFromEnv loads key material from the TOKENFORGE_* environment
// variables. It returns (nil, nil) when neither the kid nor the private key
// is set, so callers can fall through to another source; setting one without
// the other is an error. TOKENFORGE_PUBLIC_KEYS is an optional JSON map of
// kid to public key PEM covering the rotation window.
func KeyConfigFromEnv() (*KeyConfig, error) {
	activeKID := strings.TrimSpace(os.Getenv(EnvActiveKeyID))
	privateKeyPEM := strings.TrimSpace(os.Getenv(EnvPrivateKeyPEM))

	if activeKID == "" && privateKeyPEM == "" {
		return nil, nil
	}
	if activeKID == "" {
		return nil, fmt.Errorf("jwtkit: %s is set but %s is missing", EnvPrivateKeyPEM, EnvActiveKeyID)
	}
	if privateKeyPEM == "" {
		return nil, fmt.Errorf("jwtkit: %s is set but %s is missing", EnvActiveKeyID, EnvPrivateKeyPEM)
	}

	cfg := &KeyConfig{
		ActiveKeyID:   activeKID,
		PrivateKeyPEM: privateKeyPEM,
		PublicKeyPEMs: map[string]string{},
	}
	if raw := strings.TrimSpace(os.Getenv(EnvPublicKeys)); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.PublicKeyPEMs); err != nil {
			return nil, fmt.Errorf("jwtkit: parse %s: %w", EnvPublicKeys, err)
		}
	}
	return cfg, nil
}

// KeyConfigFromFile loads key material from a keys.json file. A missing file
// returns (nil, nil) so callers can fall through; an unreadable or invalid
// file is an error.
func KeyConfigFromFile(path string) (*KeyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("jwtkit: read key config: %w", err)
	}
	cfg := &KeyConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("jwtkit: parse key config %s: %w", path, err)
	}
	if cfg.ActiveKeyID == "" {
		return nil, fmt.Errorf("jwtkit: key config %s missing active_key_id", path)
	}
	if cfg.PrivateKeyPEM == "" {
		return nil, fmt.Errorf("jwtkit: key config %s missing active_private_key_pem", path)
	}
	return cfg, nil
}

// GenerateDevKeyConfig mints an ephemeral P-256 key pair under a dev- kid.
// Development and test use only.
func GenerateDevKeyConfig() (*KeyConfig, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtkit: generate dev key: %w", err)
	}
	privateDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("jwtkit: encode dev private key: %w", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("jwtkit: encode dev public key: %w", err)
	}
	kid := "dev-" + uuid.NewString()[:8]
	return &KeyConfig{
		ActiveKeyID:   kid,
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER})),
		PublicKeyPEMs: map[string]string{
			kid: string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})),
		},
	}, nil
}

// AutoKeyConfig resolves key material with the priority environment
// variables, then keys.json under keysPath (DefaultKeysPath when empty), then
// generated development keys. Generation is refused in production so a
// service cannot start without explicitly provisioned keys.
func AutoKeyConfig(keysPath string) (*KeyConfig, error) {
	if cfg, err := KeyConfigFromEnv(); err != nil {
		return nil, err
	} else if cfg != nil {
		logrus.WithField("kid", cfg.ActiveKeyID).Debug("jwtkit: loaded key material from environment")
		return cfg, nil
	}

	if keysPath == "" {
		keysPath = DefaultKeysPath
	}
	path := filepath.Join(keysPath, keysFileName)
	if cfg, err := KeyConfigFromFile(path); err != nil {
		return nil, err
	} else if cfg != nil {
		logrus.WithFields(logrus.Fields{"kid": cfg.ActiveKeyID, "path": path}).
			Debug("jwtkit: loaded key material from file")
		return cfg, nil
	}

	if isProdEnv() {
		return nil, fmt.Errorf(
			"jwtkit: no key material in env or %s and dev key generation is disabled in production; set %s/%s or mount %s",
			path, EnvActiveKeyID, EnvPrivateKeyPEM, keysFileName)
	}

	cfg, err := GenerateDevKeyConfig()
	if err != nil {
		return nil, err
	}
	logrus.WithField("kid", cfg.ActiveKeyID).
		Warn("jwtkit: no key material found, generated ephemeral development keys")
	return cfg, nil
}

// isProdEnv mirrors the ENV detection commonly used by services: ENV,
// APP_ENV, or ENVIRONMENT, case-insensitive.
func isProdEnv() bool {
	env := strings.TrimSpace(os.Getenv("ENV"))
	if env == "" {
		env = strings.TrimSpace(os.Getenv("APP_ENV"))
	}
	if env == "" {
		env = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	}
	env = strings.ToLower(env)
	return env == "production" || env == "prod"
}

func derivePublicKeyPEM(privateKeyPEM string) (string, error) {
	key, err := ParseECPrivateKeyPEM([]byte(privateKeyPEM))
	if err != nil {
		return "", err
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})), nil
}
